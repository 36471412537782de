package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nrjais/emquery/internal/catalog"
	"github.com/nrjais/emquery/internal/config"
	"github.com/nrjais/emquery/internal/sample"
	"github.com/nrjais/emquery/pkg/client"
	"github.com/nrjais/emquery/pkg/executor"
)

var (
	normalizeJSON bool

	queryAddr        string
	queryCompression string
	queryTimeout     time.Duration

	normalizeCmd = &cobra.Command{
		Use:   "normalize <entity> [query]",
		Short: "Parse a query and print its canonical form",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runNormalize,
	}

	schemaCmd = &cobra.Command{
		Use:   "schema <entity>",
		Short: "Print the default projection of an entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchema,
	}

	queryCmd = &cobra.Command{
		Use:   "query <entity> [query]",
		Short: "Run a query against a running server over gRPC",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runQuery,
	}
)

func init() {
	normalizeCmd.Flags().BoolVar(&normalizeJSON, "json", false, "print the normalized query as JSON")

	queryCmd.Flags().StringVar(&queryAddr, "addr", "localhost:50051", "gRPC server address")
	queryCmd.Flags().StringVar(&queryCompression, "compression", "zstd", "request compression: none, zstd or gzip")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 10*time.Second, "call timeout")
}

// offlineCatalog serves the in-memory sample data under the configured type
// policies, for commands that do not need a running server.
func offlineCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	parser, err := newParser(cfg)
	if err != nil {
		return nil, err
	}
	c := catalog.New(parser, executor.New())
	d := sample.Data()
	if err := catalog.RegisterSlice(c, customerEntity, d.Customers); err != nil {
		return nil, err
	}
	if err := catalog.RegisterSlice(c, contactEntity, d.Contacts); err != nil {
		return nil, err
	}
	if err := catalog.RegisterSlice(c, entityEntity, d.Entities); err != nil {
		return nil, err
	}
	return c, nil
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := offlineCatalog(cfg)
	if err != nil {
		return err
	}
	e, err := c.Lookup(args[0])
	if err != nil {
		return err
	}
	q, err := c.Parser().Parse(e.Type(), optionalArg(args, 1))
	if err != nil {
		return err
	}

	if normalizeJSON {
		return writeJSON(cmd.OutOrStdout(), q.Normalized())
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), q.String())
	return err
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := offlineCatalog(cfg)
	if err != nil {
		return err
	}
	s, err := c.Schema(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), s)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cl, err := client.NewClient(client.ClientConfig{
		ServerAddr:  queryAddr,
		Compression: queryCompression,
		Timeout:     queryTimeout,
	})
	if err != nil {
		return err
	}
	defer cl.Close()

	env, err := cl.Raw(cmd.Context(), args[0], optionalArg(args, 1))
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), env)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
