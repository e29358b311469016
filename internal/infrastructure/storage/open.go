package storage

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver      string // memory, sqlite, postgres, dynamodb
	SQLitePath  string
	PostgresURL string
	DynamoTable string
}

// Open builds the configured KV. The returned close func releases any connection.
func Open(ctx context.Context, opts Options) (KV, func() error, error) {
	noop := func() error { return nil }

	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(), noop, nil

	case "sqlite":
		db, err := ConnectSQLite(opts.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite %s: %w", opts.SQLitePath, err)
		}
		kv, err := NewSQLStore(ctx, db, DialectSQLite)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return kv, db.Close, nil

	case "postgres":
		db, err := ConnectPostgres(opts.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		kv, err := NewSQLStore(ctx, db, DialectPostgres)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return kv, db.Close, nil

	case "dynamodb":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return NewDynamoStore(dynamodb.NewFromConfig(cfg), opts.DynamoTable), noop, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}
