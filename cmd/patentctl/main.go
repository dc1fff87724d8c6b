// Package main implements the patentctl CLI for building and checking
// persisted patent index files.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/patentd/internal/corpus"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "patentctl",
	Short: "Build and check patentd index files",
	Long: `patentctl manages the per-tenant index files that patentd serves.
It builds an index from pre-embedded chunks, prints an index's header,
and verifies that an index loads cleanly.`,
	Version: version,
}

var (
	importTenant    string
	importDimension int
	verifyDimension int
)

func init() {
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id the index belongs to (required)")
	importCmd.Flags().IntVar(&importDimension, "dimension", 768, "embedding dimension of the chunk vectors")
	_ = importCmd.MarkFlagRequired("tenant")

	verifyCmd.Flags().IntVar(&verifyDimension, "dimension", 0, "expected embedding dimension (default: the file's own header)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
}

// importCmd builds an index file from JSONL chunk records.
var importCmd = &cobra.Command{
	Use:   "import <chunks.jsonl> <index.db>",
	Short: "Build an index file from pre-embedded chunks",
	Long: `Build an index file from a JSONL stream of chunk records.

Each line is one chunk:
  {"id":"us20230012345a1-0001","content":"...","vector":[0.1,...],"metadata":{"source":"US20230012345A1P.txt"}}

Examples:
  # Build the dram3d tenant's index
  patentctl import --tenant dram3d --dimension 768 chunks.jsonl indexes/dram3d.db

  # Read chunks from stdin
  embedder-pipeline | patentctl import --tenant dram3d chunks.jsonl indexes/dram3d.db`,
	Args: cobra.ExactArgs(2),
	RunE: runImport,
}

// inspectCmd prints an index file's header.
var inspectCmd = &cobra.Command{
	Use:   "inspect <index.db>",
	Short: "Print an index file's header",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

// verifyCmd fully loads an index file and reports the result.
var verifyCmd = &cobra.Command{
	Use:   "verify <index.db>",
	Short: "Verify that an index file loads cleanly",
	Long: `Fully load an index file the way patentd does at startup, decoding
every chunk and vector, and report the result.

Examples:
  patentctl verify indexes/dram3d.db
  patentctl verify --dimension 768 indexes/dram3d.db`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

// chunkLine is one JSONL record of the import format.
type chunkLine struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

func runImport(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	var reader io.Reader
	if input == "-" {
		reader = cmd.InOrStdin()
	} else {
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("opening chunks file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	var chunks []corpus.Chunk
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec chunkLine
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		chunks = append(chunks, corpus.Chunk{
			ID:       rec.ID,
			Content:  rec.Content,
			Vector:   rec.Vector,
			Metadata: rec.Metadata,
		})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading chunks: %w", err)
	}

	if err := corpus.Write(output, importTenant, importDimension, chunks); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d chunks for tenant %q to %s\n", len(chunks), importTenant, output)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	header, err := corpus.ReadHeader(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tenant:         %s\n", header.Tenant)
	fmt.Fprintf(cmd.OutOrStdout(), "format version: %d\n", header.FormatVersion)
	fmt.Fprintf(cmd.OutOrStdout(), "dimension:      %d\n", header.Dimension)
	fmt.Fprintf(cmd.OutOrStdout(), "chunks:         %d\n", header.Count)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	path := args[0]

	header, err := corpus.ReadHeader(path)
	if err != nil {
		return err
	}
	dimension := verifyDimension
	if dimension == 0 {
		dimension = header.Dimension
	}

	// Load through the same path the daemon uses. The daemon resolves
	// <dir>/<tenant>.db, so the file name must match the declared tenant.
	if want := header.Tenant + ".db"; filepath.Base(path) != want {
		return fmt.Errorf("file is named %q but declares tenant %q; rename it to %q",
			filepath.Base(path), header.Tenant, want)
	}
	store := corpus.NewStore(filepath.Dir(path), dimension, nil)
	ix, err := store.Load(context.Background(), header.Tenant)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: tenant %q, %d chunks, dimension %d\n",
		ix.Tenant(), ix.Len(), ix.Dimension())
	return nil
}
