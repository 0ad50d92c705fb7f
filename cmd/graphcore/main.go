// Package main provides the graphcore CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/graphcore/pkg/config"
	"github.com/orneryd/graphcore/pkg/graphdb"
	"github.com/orneryd/graphcore/pkg/logging"
	"github.com/orneryd/graphcore/pkg/query"
	"github.com/orneryd/graphcore/pkg/storage"
	"github.com/orneryd/graphcore/pkg/traversal"
	"github.com/orneryd/graphcore/pkg/value"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphcore",
		Short: "graphcore - embedded graph database",
		Long: `graphcore is an embedded property graph store backed by BadgerDB.

This binary is a thin embedder for inspecting and maintaining a data
directory: statistics, integrity checks, Neo4j JSON import/export and
ad-hoc traversals and queries.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphcore v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a data directory with a default config file",
		RunE:  runInit,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show node, edge and cache statistics",
		RunE:  runStats,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Cross-check records, adjacency and indexes",
		RunE:  runVerify,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "import [file-or-dir]",
		Short: "Import a Neo4j JSON export file or APOC export directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Export the graph as Neo4j JSON (stdout when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	})

	bfsCmd := &cobra.Command{
		Use:   "bfs [start-id]",
		Short: "List nodes reachable from a start node",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraverse,
	}
	bfsCmd.Flags().Int("depth", traversal.Unlimited, "Maximum depth (-1 = unlimited)")
	bfsCmd.Flags().String("direction", "outgoing", "Edge direction: outgoing, incoming or both")
	bfsCmd.Flags().Bool("dfs", false, "Depth-first instead of breadth-first")
	rootCmd.AddCommand(bfsCmd)

	pathCmd := &cobra.Command{
		Use:   "path [from-id] [to-id]",
		Short: "Print the shortest unweighted path between two nodes",
		Args:  cobra.ExactArgs(2),
		RunE:  runPath,
	}
	pathCmd.Flags().String("direction", "outgoing", "Edge direction: outgoing, incoming or both")
	rootCmd.AddCommand(pathCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "components",
		Short: "Print weakly connected components",
		RunE:  runComponents,
	})

	queryCmd := &cobra.Command{
		Use:   "query",
		Short: "Filter, sort and page nodes (or edges with --edges)",
		RunE:  runQuery,
	}
	queryCmd.Flags().String("label", "", "Restrict to one label")
	queryCmd.Flags().StringArray("where", nil, "Predicate key<op>value, op one of = <> > >= < <= ~ (contains) ^ (starts with)")
	queryCmd.Flags().String("order", "", "Sort key; prefix with - for descending")
	queryCmd.Flags().Int("offset", 0, "Rows to skip")
	queryCmd.Flags().Int("limit", -1, "Maximum rows (-1 = all)")
	queryCmd.Flags().Bool("edges", false, "Query edges instead of nodes")
	rootCmd.AddCommand(queryCmd)

	return rootCmd
}

// loadConfig layers defaults, the --config file, GRAPHCORE_* variables and
// command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

func openDB(cmd *cobra.Command) (*graphdb.DB, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	logger.WithField("config", cfg.String()).Debug("opening database")
	db, err := graphdb.Open(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, logger, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.InMemory {
		return fmt.Errorf("init needs an on-disk data directory")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "📂 Initializing graphcore database in %s\n", cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", cfg.DataDir, err)
	}
	configPath := filepath.Join(cfg.DataDir, "graphcore.yaml")
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	logger, err := logging.New(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	db, err := graphdb.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating store: %w", err)
	}
	if err := db.Close(); err != nil {
		return err
	}

	fmt.Fprintln(out, "✅ Database initialized")
	fmt.Fprintf(out, "   Config: %s\n", configPath)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	s := db.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Nodes: %d\n", s.Nodes)
	printLabels(out, s.NodeLabels)
	fmt.Fprintf(out, "Edges: %d\n", s.Edges)
	printLabels(out, s.EdgeLabels)
	fmt.Fprintf(out, "Cache: %d/%d entries, %s, hit rate %.1f%%\n",
		s.Cache.Size, s.Cache.Capacity, config.FormatMemorySize(s.Cache.Bytes), s.Cache.HitRate)
	fmt.Fprintf(out, "Store reads: %d\n", s.StoreReads)
	return nil
}

func printLabels(out io.Writer, labels map[string]int) {
	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	sort.Strings(names)
	for _, l := range names {
		fmt.Fprintf(out, "  %-20s %d\n", l, labels[l])
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := db.CheckIntegrity(context.Background()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d nodes and %d edges consistent (%v)\n",
		db.NodeCount(), db.EdgeCount(), time.Since(start).Round(time.Millisecond))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	export, err := storage.ReadNeo4jExport(args[0])
	if err != nil {
		return err
	}

	db, logger, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	res, err := db.Import(export)
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}
	logger.WithFields(logrus.Fields{"nodes": res.Nodes, "edges": res.Edges}).Info("import finished")
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Imported %d nodes, %d edges in %v\n",
		res.Nodes, res.Edges, time.Since(start).Round(time.Millisecond))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	export, err := db.Export()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return storage.WriteNeo4jExport(cmd.OutOrStdout(), export)
	}

	file, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if err := storage.WriteNeo4jExport(file, export); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func runTraverse(cmd *cobra.Command, args []string) error {
	depth, _ := cmd.Flags().GetInt("depth")
	dfs, _ := cmd.Flags().GetBool("dfs")
	dir, err := directionFlag(cmd)
	if err != nil {
		return err
	}

	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	walk := traversal.BFS
	if dfs {
		walk = traversal.DFS
	}
	it := walk(db, storage.NodeID(args[0]), depth, traversal.WithDirection(dir))
	out := cmd.OutOrStdout()
	for it.Next() {
		fmt.Fprintf(out, "%d\t%s\n", it.Depth(), it.Node())
	}
	return it.Err()
}

func runPath(cmd *cobra.Command, args []string) error {
	dir, err := directionFlag(cmd)
	if err != nil {
		return err
	}
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	path, err := traversal.ShortestPath(db, storage.NodeID(args[0]), storage.NodeID(args[1]), traversal.WithDirection(dir))
	if err != nil {
		return err
	}
	if len(path) == 0 {
		return fmt.Errorf("no path from %s to %s", args[0], args[1])
	}
	ids := make([]string, len(path))
	for i, id := range path {
		ids[i] = string(id)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " -> "))
	return nil
}

func runComponents(cmd *cobra.Command, args []string) error {
	db, _, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	comps, err := traversal.ConnectedComponents(db)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for i, c := range comps {
		fmt.Fprintf(out, "component %d (%d nodes)\n", i+1, len(c))
		for _, id := range c {
			fmt.Fprintf(out, "  %s\n", id)
		}
	}
	return nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	wheres, _ := cmd.Flags().GetStringArray("where")
	order, _ := cmd.Flags().GetString("order")
	offset, _ := cmd.Flags().GetInt("offset")
	limit, _ := cmd.Flags().GetInt("limit")
	edges, _ := cmd.Flags().GetBool("edges")

	db, logger, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	coll := db.Nodes()
	if edges {
		coll = db.Edges()
	}
	q := query.New(coll).Offset(offset).Limit(limit)
	if label != "" {
		q.Label(label)
	}
	for _, w := range wheres {
		p, err := parseWhere(w)
		if err != nil {
			return err
		}
		q.Where(p.Key, p.Op, p.Value)
	}
	if order != "" {
		q.OrderBy(strings.TrimPrefix(order, "-"), !strings.HasPrefix(order, "-"))
	}

	res, err := q.Execute()
	if err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"plan": res.Plan, "skipped": res.Skipped}).Debug("query executed")

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, e := range res.Entities {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// whereOps is ordered so two-character operators are tried first.
var whereOps = []struct {
	token string
	op    query.Op
}{
	{"<>", query.Ne},
	{">=", query.Gte},
	{"<=", query.Lte},
	{"=", query.Eq},
	{">", query.Gt},
	{"<", query.Lt},
	{"~", query.Contains},
	{"^", query.StartsWith},
}

// parseWhere parses key<op>value. The value is read as JSON when it parses
// (numbers, true/false, null, quoted strings) and as a bare string otherwise.
func parseWhere(s string) (query.Predicate, error) {
	best, bestAt := -1, len(s)
	for i, w := range whereOps {
		if at := strings.Index(s, w.token); at > 0 && at < bestAt {
			best, bestAt = i, at
		}
	}
	if best < 0 {
		return query.Predicate{}, fmt.Errorf("invalid --where %q: expected key<op>value", s)
	}
	w := whereOps[best]
	raw := s[bestAt+len(w.token):]

	var v value.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = value.String(raw)
	}
	return query.Predicate{Key: s[:bestAt], Op: w.op, Value: v}, nil
}

func directionFlag(cmd *cobra.Command) (storage.Direction, error) {
	s, _ := cmd.Flags().GetString("direction")
	return storage.ParseDirection(s)
}
