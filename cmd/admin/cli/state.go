package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	stateBus "github.com/dirops/authseed/internal/domains/userstate/bus"
	"github.com/dirops/authseed/internal/domains/userstate/store/statedb"
	"github.com/dirops/authseed/internal/sqldb"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	statePath      string
	employeeNumber string
	userName       string
)

func init() {
	rootCommand.AddCommand(getUserCommand)
	rootCommand.AddCommand(resetUserCommand)

	getUserCommand.Flags().StringVar(&statePath, "state", "state.db", "Path to the sqlite state database.")
	getUserCommand.Flags().StringVarP(&employeeNumber, "employee", "e", "", "Employee number to look up.")
	getUserCommand.Flags().StringVarP(&userName, "username", "n", "", "Username to look up.")

	resetUserCommand.Flags().StringVar(&statePath, "state", "state.db", "Path to the sqlite state database.")
	resetUserCommand.Flags().StringVarP(&employeeNumber, "employee", "e", "", "Employee number to reset.")
}

func openStateBus() (*stateBus.Bus, func(), error) {
	db, err := sqldb.OpenSQLite(statePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open state db: %w", err)
	}

	store := statedb.NewStore(db, noop.NewTracerProvider().Tracer(""))
	return stateBus.New(store), func() { _ = db.Close() }, nil
}

var getUserCommand = &cobra.Command{
	Use:   "get-user",
	Short: "prints the persisted state for one user",
	Long: `Look up a user's persisted state by employee number or username.

Examples:
  admin get-user --state=state.db --employee=123
  admin get-user --state=state.db --username=jdoe`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if employeeNumber == "" && userName == "" {
			return fmt.Errorf("an employee number (--employee) or username (--username) is required")
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		bus, closeDB, err := openStateBus()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		var st stateBus.State
		if employeeNumber != "" {
			st, err = bus.QueryByEmployeeNumber(ctx, employeeNumber)
		} else {
			st, err = bus.QueryByUserName(ctx, userName)
		}

		if errors.Is(err, stateBus.ErrStateNotFound) {
			return fmt.Errorf("no persisted state found")
		}
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	},
}

var resetUserCommand = &cobra.Command{
	Use:   "reset-user",
	Short: "removes a user's persisted state to force reprocessing",
	Long: `Delete a user's persisted state row. The next importer run treats the
user as new and re-dispatches an update for them.

Examples:
  admin reset-user --state=state.db --employee=123`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if employeeNumber == "" {
			return fmt.Errorf("an employee number (--employee) is required")
		}
		return nil
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		bus, closeDB, err := openStateBus()
		if err != nil {
			return err
		}
		defer closeDB()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()

		if _, err := bus.QueryByEmployeeNumber(ctx, employeeNumber); err != nil {
			if errors.Is(err, stateBus.ErrStateNotFound) {
				return fmt.Errorf("no persisted state found for employee %s", employeeNumber)
			}
			return fmt.Errorf("query: %w", err)
		}

		if err := bus.Delete(ctx, employeeNumber); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		fmt.Printf("reset state for employee %s\n", employeeNumber)
		return nil
	},
}
