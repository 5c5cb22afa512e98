// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Command tinybase-inspect is a read-only debugging aid: it opens an
// existing TinyBase store and lists its trees and their key counts. It
// is tooling around the library, not part of the engine itself (spec.md
// §1 excludes any CLI from the library's own scope).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/erigontech/tinybase/kv"
	"github.com/erigontech/tinybase/store"
)

func main() {
	var path string

	root := &cobra.Command{
		Use:   "tinybase-inspect",
		Short: "Inspect a TinyBase store's trees without mutating it",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}
			return inspect(path)
		},
	}
	root.Flags().StringVar(&path, "path", "", "path to the TinyBase data directory")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func inspect(path string) error {
	s, err := store.Open(store.Options{Path: path})
	if err != nil {
		return err
	}
	defer s.Close()

	trees, err := s.Trees()
	if err != nil {
		return err
	}
	db := s.DB()
	return db.View(context.Background(), func(tx kv.Tx) error {
		for _, tree := range trees {
			n, err := tx.Count(tree)
			if err != nil {
				return err
			}
			fmt.Printf("%-40s %d entries\n", tree, n)
		}
		return nil
	})
}
