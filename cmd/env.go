package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/archive"
	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/responses"
	"github.com/sells-group/gps-cli/internal/roster"
	"github.com/sells-group/gps-cli/internal/store"
	"github.com/sells-group/gps-cli/pkg/notion"
	sfpkg "github.com/sells-group/gps-cli/pkg/salesforce"
)

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.SQLitePath
		if dsn == "" {
			dsn = "gps.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func retryPolicy() resilience.Policy {
	p := cfg.Processing.Retry.Policy()
	p.OnRetry = func(attempt int, err error) {
		zap.L().Warn("retrying after error", zap.Int("attempt", attempt), zap.Error(err))
	}
	return p
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (GPS_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	return sfpkg.Connect(sfpkg.Credentials{
		LoginURL:   cfg.Salesforce.LoginURL,
		Username:   cfg.Salesforce.Username,
		ClientID:   cfg.Salesforce.ClientID,
		PrivateKey: string(pemData),
	}, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit))
}

// rosterSource picks the roster backend named by roster.source.
func rosterSource(st store.Store) (roster.Source, error) {
	switch cfg.Roster.Source {
	case "", config.SourceStore:
		return roster.NewStoreSource(st), nil
	case config.SourceSalesforce:
		sf, err := initSalesforce()
		if err != nil {
			return nil, err
		}
		return roster.NewSalesforceSource(sf), nil
	default:
		return nil, eris.Errorf("unsupported roster source: %s", cfg.Roster.Source)
	}
}

// responseSource picks the response backend named by responses.source.
func responseSource(st store.Store) (responses.Source, error) {
	switch cfg.Responses.Source {
	case "", config.SourceStore:
		return responses.NewStoreSource(st), nil
	case config.SourceNotion:
		if cfg.Notion.Token == "" {
			return nil, eris.New("notion token is required (GPS_NOTION_TOKEN)")
		}
		c := notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
		return responses.NewNotionSource(c, cfg.Notion.ResponsesDB), nil
	default:
		return nil, eris.Errorf("unsupported responses source: %s", cfg.Responses.Source)
	}
}

// initArchive returns the configured archive, a closer to release it, or a
// nil archive when archiving is off.
func initArchive(ctx context.Context) (archive.Store, func(), error) {
	a := cfg.Archive
	ar, err := archive.New(ctx, archive.Config{
		Driver:    a.Driver,
		Path:      a.Path,
		Bucket:    a.Bucket,
		Prefix:    a.Prefix,
		Region:    a.Region,
		Endpoint:  a.Endpoint,
		AccessKey: a.AccessKey,
		SecretKey: a.SecretKey,
	})
	if err != nil {
		return nil, func() {}, err
	}
	closeFn := func() {}
	if c, ok := ar.(io.Closer); ok {
		closeFn = func() { _ = c.Close() }
	}
	return ar, closeFn, nil
}

// monthFlag parses a --month value. Empty means fallback, which is returned
// as is.
func monthFlag(s string, fallback model.Month) (model.Month, error) {
	if s == "" {
		return fallback, nil
	}
	m, err := model.ParseMonth(s)
	if err != nil {
		return model.Month{}, &resilience.ValidationError{Field: "month", Value: s, Msg: "must be YYYY-MM"}
	}
	return m, nil
}

// lastMonth is the most recent completed calendar month.
func lastMonth(now time.Time) model.Month {
	return model.NewMonth(now).Prev()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
