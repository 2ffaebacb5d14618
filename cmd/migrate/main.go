// migrate applies the embedded SQL migrations: go run ./cmd/migrate [--direction up|down] [--status].
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"exam-practice/backend/internal/config"
	"exam-practice/backend/internal/db/migrate"
)

func main() {
	direction := flag.StringP("direction", "d", migrate.Up, "migration direction: up or down")
	dsn := flag.String("dsn", "", "Postgres DSN (defaults to DATABASE_URL)")
	status := flag.Bool("status", false, "print the applied schema version and exit")
	flag.Parse()

	if *dsn == "" {
		*dsn = config.LoadDatabaseURL()
	}

	if *status {
		v, dirty, err := migrate.Version(*dsn)
		if err != nil {
			fmt.Fprintln(os.Stderr, "migrate:", err)
			os.Exit(1)
		}
		fmt.Printf("version %d (dirty=%v)\n", v, dirty)
		return
	}

	if err := migrate.Run(*dsn, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
