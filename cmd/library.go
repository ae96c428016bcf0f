package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/MimeLyc/subtube/internal/library"
	"github.com/MimeLyc/subtube/internal/subtitle"
	"github.com/MimeLyc/subtube/internal/video"
	"github.com/MimeLyc/subtube/pkg/file"
	"github.com/MimeLyc/subtube/pkg/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// srtNextToCaptions is the --srt value used when the flag has no argument:
// the SRT file goes next to the caption JSON.
const srtNextToCaptions = "auto"

var (
	showAt  float64
	showSRT string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded videos, newest first",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(ctx context.Context, out io.Writer, lib *library.Manager, _ []string) error {
		return listVideos(ctx, out, lib)
	}),
}

var showCmd = &cobra.Command{
	Use:   "show <video-id>",
	Short: "Print a video's captions, the line at a position or export them as SRT",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(ctx context.Context, out io.Writer, lib *library.Manager, args []string) error {
		if showSRT != "" {
			return exportSRT(ctx, out, lib, args[0], showSRT)
		}
		if showAt >= 0 {
			return showCaptionAt(ctx, out, lib, args[0], showAt)
		}
		return showCaptions(ctx, out, lib, args[0])
	}),
}

var deleteCmd = &cobra.Command{
	Use:   "delete <video-id>",
	Short: "Delete a video and its files",
	Args:  cobra.ExactArgs(1),
	RunE: withLibrary(func(ctx context.Context, out io.Writer, lib *library.Manager, args []string) error {
		rec, err := lib.Delete(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %s (%s)\n", rec.VideoID, rec.Title)
		return nil
	}),
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every video and its files",
	Args:  cobra.NoArgs,
	RunE: withLibrary(func(ctx context.Context, out io.Writer, lib *library.Manager, _ []string) error {
		n, err := lib.Purge(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d videos\n", n)
		return nil
	}),
}

func init() {
	showCmd.Flags().Float64Var(&showAt, "at", -1, "print the caption line shown at this many seconds")
	showCmd.Flags().StringVar(&showSRT, "srt", "", "export the captions with their translations to this SRT file (default: next to the caption file)")
	showCmd.Flags().Lookup("srt").NoOptDefVal = srtNextToCaptions
	rootCmd.AddCommand(listCmd, showCmd, deleteCmd, purgeCmd)
}

type libraryFunc func(ctx context.Context, out io.Writer, lib *library.Manager, args []string) error

func withLibrary(fn libraryFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		log.GetLogger().SetOutput(os.Stderr)
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd.Context(), cmd.OutOrStdout(), library.NewManager(store), args)
	}
}

func listVideos(ctx context.Context, out io.Writer, lib *library.Manager) error {
	entries, err := lib.List(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No videos")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDOWNLOADED\tFILES")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			e.VideoID, e.Title, humanize.Time(e.DownloadDate), fileFlags(e))
	}
	return tw.Flush()
}

// fileFlags renders which files exist: a=audio c=captions t=thumbnail.
func fileFlags(e library.Entry) string {
	flags := []byte("---")
	if e.Files.HasAudio {
		flags[0] = 'a'
	}
	if e.Files.HasCaptions {
		flags[1] = 'c'
	}
	if e.Files.HasThumbnail {
		flags[2] = 't'
	}
	return string(flags)
}

func showCaptions(ctx context.Context, out io.Writer, lib *library.Manager, videoID string) error {
	entry, err := lib.Get(ctx, videoID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s  %s\n", entry.VideoID, entry.Title)
	fmt.Fprintf(out, "downloaded %s\n", entry.DownloadDate.Local().Format(video.DateLayout))
	fmt.Fprintf(out, "audio      %s\n", entry.AudioPath)
	if entry.ThumbnailPath != "" {
		fmt.Fprintf(out, "thumbnail  %s\n", entry.ThumbnailPath)
	}
	if entry.SubtitlePath == "" {
		return nil
	}
	fmt.Fprintf(out, "captions   %s\n\n", entry.SubtitlePath)

	lines, err := lib.Captions(ctx, videoID)
	if err != nil {
		return err
	}
	for _, line := range lines {
		printLine(out, line)
	}
	return nil
}

func showCaptionAt(ctx context.Context, out io.Writer, lib *library.Manager, videoID string, at float64) error {
	line, ok, err := lib.CaptionAt(ctx, videoID, at)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "No caption at %.2fs\n", at)
		return nil
	}
	printLine(out, line)
	return nil
}

func printLine(out io.Writer, line subtitle.Line) {
	fmt.Fprintf(out, "[%7.2f - %7.2f] %s\n", line.Start, line.End(), line.Text)
	if t := strings.TrimSpace(line.TranslatedText); t != "" {
		fmt.Fprintf(out, "%19s %s\n", "", t)
	}
}

func exportSRT(ctx context.Context, out io.Writer, lib *library.Manager, videoID, path string) error {
	lines, err := lib.Captions(ctx, videoID)
	if err != nil {
		return err
	}
	if path == srtNextToCaptions {
		entry, err := lib.Get(ctx, videoID)
		if err != nil {
			return err
		}
		path = file.ReplaceExt(entry.SubtitlePath, "srt")
	}
	if err := subtitle.NewSRTWriter().Write(path, &subtitle.File{Lines: lines}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(out, "Wrote %d lines to %s\n", len(lines), path)
	return nil
}
