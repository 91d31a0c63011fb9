package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kirillkom/chapterflow/internal/core/domain"
	"github.com/kirillkom/chapterflow/internal/infrastructure/progress"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var title string
	var watch bool

	cmd := &cobra.Command{
		Use:   "upload <path>",
		Short: "Upload a document for chapter ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			client := ctx.client()
			out := cmd.OutOrStdout()

			if !watch {
				res, err := client.Upload(cmd.Context(), path, title, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Accepted %s (%s)\n", res.ID, res.Status)
				return nil
			}

			clientID := uuid.NewString()
			stream, err := client.openProgress(cmd.Context(), clientID)
			if err != nil {
				return err
			}
			defer stream.Close()
			go func() {
				<-cmd.Context().Done()
				_ = stream.conn.Close()
			}()

			res, err := client.Upload(cmd.Context(), path, title, clientID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Accepted %s (%s)\n", res.ID, res.Status)
			return watchDocument(out, stream, res.ID)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream progress until ingestion finishes")
	return cmd
}

type frameSource interface {
	Next() (progress.Message, error)
}

var errIngestionFailed = errors.New("ingestion failed")

// watchDocument prints progress frames for documentID until a terminal event.
func watchDocument(out io.Writer, stream frameSource, documentID string) error {
	for {
		msg, err := stream.Next()
		if err != nil {
			return fmt.Errorf("progress channel: %w", err)
		}
		switch msg.Type {
		case domain.EventProcessingStarted:
			var p domain.ProcessingStarted
			if json.Unmarshal(msg.Result, &p) != nil || p.DocumentID != documentID {
				continue
			}
			fmt.Fprintln(out, "Processing started")
		case domain.EventChapterBatchReady:
			var p domain.ChapterBatchReady
			if json.Unmarshal(msg.Result, &p) != nil || p.DocumentID != documentID {
				continue
			}
			for _, ch := range p.Chapters {
				fmt.Fprintf(out, "  %4d  %-40s  %6d words  %s\n", ch.Ordinal, ch.Title, ch.WordCount, ch.ID)
			}
		case domain.EventCompleted:
			var p domain.ProcessingCompleted
			if json.Unmarshal(msg.Result, &p) != nil || p.DocumentID != documentID {
				continue
			}
			fmt.Fprintf(out, "Completed: %d chapters\n", p.ChapterCount)
			return nil
		case domain.EventFailed:
			var p domain.ProcessingFailed
			if json.Unmarshal(msg.Result, &p) != nil || p.DocumentID != documentID {
				continue
			}
			return fmt.Errorf("%w: %s", errIngestionFailed, p.Error)
		}
	}
}
