package main

import (
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/fx"

	"rally-tagger/internal/cli"
	fxmodules "rally-tagger/internal/fx"
	"rally-tagger/internal/service"
)

func main() {
	if os.Getenv("LOG_LEVEL") == "" {
		os.Setenv("LOG_LEVEL", "warn")
	}
	if err := cli.RootCmd(open).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// open builds the storage half of the server graph without starting anything.
func open() (cli.Tagger, func() error, error) {
	var (
		svc   *service.SessionService
		sqlDB *sql.DB
	)
	app := fx.New(
		fxmodules.Store,
		fx.NopLogger,
		fx.Populate(&svc, &sqlDB),
	)
	if err := app.Err(); err != nil {
		return nil, nil, err
	}
	return svc, sqlDB.Close, nil
}
