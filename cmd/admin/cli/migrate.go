package cli

import (
	"fmt"

	"github.com/dirops/authseed/internal/migrate"
	"github.com/dirops/authseed/internal/sqldb"
	"github.com/spf13/cobra"
)

// Queue database required configs
var (
	dbuser string
	dbpass string
	host   string
	name   string
)

func init() {
	rootCommand.AddCommand(migrateCommand)

	//database connection flags
	migrateCommand.Flags().StringVarP(&dbuser, "user", "u", "postgres", "Queue database username required.")
	migrateCommand.Flags().StringVarP(&dbpass, "pass", "p", "postgres", "Queue database password required.")
	migrateCommand.Flags().StringVar(&host, "host", "localhost:5432", "Queue database host:port required.")
	migrateCommand.Flags().StringVarP(&name, "name", "n", "postgres", "Queue database name to run migration against required.")
	migrateCommand.Flags().StringVar(&statePath, "state", "state.db", "Path to the sqlite state database.")
}

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "performs migrations",
	Long: `Execute the queue and state database migrations.

Examples:
  admin migrate --user=myuser --pass=mypass --host=localhost:5432 --name=mydb --state=state.db`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if dbuser == "" {
			return fmt.Errorf("queue database user is required (--user)")
		}

		if dbpass == "" {
			return fmt.Errorf("queue database password is required (--pass)")
		}

		if host == "" {
			return fmt.Errorf("queue database host is required (--host)")
		}

		if name == "" {
			return fmt.Errorf("queue database name is required (--name)")
		}

		if statePath == "" {
			return fmt.Errorf("state database path is required (--state)")
		}

		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("applying queue migrations...")

		db, err := sqldb.OpenPostgres(sqldb.PostgresConfig{
			User:       dbuser,
			Password:   dbpass,
			Host:       host,
			Name:       name,
			DisableTLS: true,
		})
		if err != nil {
			return fmt.Errorf("open connection: %w", err)
		}

		defer db.Close()

		if err := migrate.Queue(db, name); err != nil {
			return fmt.Errorf("migrate queue: %w", err)
		}

		fmt.Println("applying state migrations...")

		stateDB, err := sqldb.OpenSQLite(statePath)
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}

		defer stateDB.Close()

		if err := migrate.State(stateDB); err != nil {
			return fmt.Errorf("migrate state: %w", err)
		}

		fmt.Println("migration completed!")
		return nil
	},
}
