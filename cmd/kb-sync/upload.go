// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pdiddy/kb-sync/internal/mirror"
	"github.com/pdiddy/kb-sync/internal/upload"
	"github.com/pdiddy/kb-sync/internal/vecstore"
	"github.com/pdiddy/kb-sync/pkg/types"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [article-ids...]",
	Short: "Push mirrored articles into the vector store",
	Long: `Upload pushes mirrored Markdown files into the vector store in batches.
By default it uploads only the named article ids; --all re-uploads the
whole mirror, for example after recreating the store. Articles must have
been mirrored first: ids without a ledger entry are rejected, and ledger
entries whose files are missing on disk abort the upload.`,
	RunE: runUpload,
}

func init() {
	addHTTPFlags(uploadCmd)
	addStoreFlag(uploadCmd)
	addUploadFlags(uploadCmd)
	uploadCmd.Flags().Bool("all", false, "upload every article in the ledger")

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	if !all && len(args) == 0 {
		return fmt.Errorf("provide article ids or --all to upload the whole mirror")
	}

	store, err := mirror.NewStore(stringSetting(cmd, "content-dir", "store.content_dir"))
	if err != nil {
		return err
	}
	ledger, err := store.LoadLedger()
	if err != nil {
		return fmt.Errorf("loading ledger: %w", err)
	}

	var delta []types.Change
	if all {
		ids := make([]string, 0, len(ledger))
		for id := range ledger {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			delta = append(delta, types.Change{ID: id, Status: types.ChangeUpdated})
		}
	} else {
		for _, id := range args {
			if _, ok := ledger[id]; !ok {
				return fmt.Errorf("article %s is not in the ledger; run mirror first", id)
			}
			delta = append(delta, types.Change{ID: id, Status: types.ChangeUpdated})
		}
	}

	cfg, err := uploadConfigFromCmd(cmd)
	if err != nil {
		return err
	}
	svc := vecstore.NewClient(&http.Client{Timeout: cfg.Timeout}, cfg)

	result, err := upload.Run(cmd.Context(), svc, store, ledger, delta, cfg.BatchSize, os.Stdout)
	if err != nil {
		return err
	}
	if result.HasFailures() {
		return fmt.Errorf("%d batch(es) failed", result.FailedBatches)
	}
	return nil
}
