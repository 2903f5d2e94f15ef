package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Yuvi9587/Kemono-Downloader/pkg/config"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/events"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/logger"
	"github.com/Yuvi9587/Kemono-Downloader/pkg/session"
)

var (
	// Download command flags
	outputDir      string
	postWorkers    int
	fileWorkers    int
	cookieString   string
	startPage      int
	endPage        int
	filterNames    []string
	filterScope    string
	skipWords      []string
	skipScope      string
	removeWords    []string
	fileType       string
	filterFolders  bool
	postSubfolders bool
	mangaStyle     string
	mangaPrefix    string
	multipart      bool
	compressImages bool
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download <url>",
	Short: "Download a creator feed or a single post",
	Long: `Download all file attachments from a creator feed, or from one post
when the URL points at a specific post.

Supported URL forms:
  https://kemono.su/<service>/user/<id>
  https://kemono.su/<service>/user/<id>/post/<post-id>
  https://coomer.su/<service>/user/<id>

Filters restrict which posts and files are taken. Manga mode fetches the
whole feed first and renames files for sequential reading.`,
	Example: `  # Download a whole creator feed
  kemonodl download https://kemono.su/patreon/user/12345

  # Download one post with multi-part transfers
  kemonodl download https://kemono.su/patreon/user/12345/post/6789 --multipart

  # Only posts mentioning a character, images only, into per-filter folders
  kemonodl download https://kemono.su/patreon/user/12345 \
    --filter "Tifa" --filter "(Aerith, Aeris)" --file-type image --filter-folders

  # Sequential reading order with date-based names
  kemonodl download https://kemono.su/patreon/user/12345 --manga-style date`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: ./downloads)")
	downloadCmd.Flags().IntVarP(&postWorkers, "workers", "w", 0, "concurrent post workers")
	downloadCmd.Flags().IntVar(&fileWorkers, "file-workers", 0, "concurrent file transfers per post")
	downloadCmd.Flags().StringVar(&cookieString, "cookie", "", "session cookie header value")
	downloadCmd.Flags().IntVar(&startPage, "start-page", 0, "first feed page to fetch")
	downloadCmd.Flags().IntVar(&endPage, "end-page", 0, "last feed page to fetch (0 = no limit)")
	downloadCmd.Flags().StringArrayVar(&filterNames, "filter", nil, "name filter, repeatable; \"(A, B)\" groups aliases")
	downloadCmd.Flags().StringVar(&filterScope, "filter-scope", "", "where filters match: files, title, both, comments")
	downloadCmd.Flags().StringArrayVar(&skipWords, "skip", nil, "skip word, repeatable")
	downloadCmd.Flags().StringVar(&skipScope, "skip-scope", "", "where skip words match: files, posts, both")
	downloadCmd.Flags().StringArrayVar(&removeWords, "remove-word", nil, "word removed from saved filenames, repeatable")
	downloadCmd.Flags().StringVar(&fileType, "file-type", "", "file type filter: all, image, video, archive, audio")
	downloadCmd.Flags().BoolVar(&filterFolders, "filter-folders", false, "save matched posts into per-filter folders")
	downloadCmd.Flags().BoolVar(&postSubfolders, "post-subfolders", false, "save each post into its own subfolder")
	downloadCmd.Flags().StringVar(&mangaStyle, "manga-style", "", "sequential naming style: original, title, date, title_global, post_id, date_title")
	downloadCmd.Flags().StringVar(&mangaPrefix, "manga-prefix", "", "filename prefix for the original manga style")
	downloadCmd.Flags().BoolVar(&multipart, "multipart", false, "split large files into concurrent byte-range parts")
	downloadCmd.Flags().BoolVar(&compressImages, "compress-images", false, "recompress large images to JPEG quality 80")
}

func runDownload(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"url": strings.TrimSpace(args[0]),
	}
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if postWorkers > 0 {
		flags["workers"] = postWorkers
	}
	if fileWorkers > 0 {
		flags["file-workers"] = fileWorkers
	}
	if cookieString != "" {
		flags["cookie"] = cookieString
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}
	applyDownloadFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()
	log.InfoWithFields("kemonodl starting", map[string]interface{}{
		"version": version,
		"url":     cfg.Source.URL,
	})

	s, err := session.New(session.Options{Config: cfg, Logger: log})
	if err != nil {
		return err
	}

	// First interrupt cancels the session gracefully; a second one kills
	// the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		s.Control().Cancel()
		fmt.Fprintln(os.Stderr, "\ninterrupted, finishing in-flight transfers...")
	}()

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx)
	}()

	renderEvents(s.Events())

	if err := <-done; err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}

// applyDownloadFlags maps the flags with no config.Load key onto the
// loaded configuration. Only flags the user actually set override the
// file and environment values.
func applyDownloadFlags(cmd *cobra.Command, cfg *config.Config) {
	if startPage > 0 {
		cfg.Source.StartPage = startPage
	}
	if cmd.Flags().Changed("end-page") {
		cfg.Source.EndPage = endPage
	}
	if len(filterNames) > 0 {
		cfg.Filters.Names = filterNames
	}
	if filterScope != "" {
		cfg.Filters.NameScope = filterScope
	}
	if len(skipWords) > 0 {
		cfg.Filters.SkipWords = skipWords
	}
	if skipScope != "" {
		cfg.Filters.SkipScope = skipScope
	}
	if len(removeWords) > 0 {
		cfg.Filters.RemoveWords = removeWords
	}
	if fileType != "" {
		cfg.Filters.FileType = fileType
	}
	if cmd.Flags().Changed("filter-folders") {
		cfg.Output.FilterFolders = filterFolders
	}
	if cmd.Flags().Changed("post-subfolders") {
		cfg.Output.PostSubfolders = postSubfolders
	}
	if mangaStyle != "" {
		cfg.Manga.Enabled = true
		cfg.Manga.Style = mangaStyle
	}
	if mangaPrefix != "" {
		cfg.Manga.Prefix = mangaPrefix
	}
	if cmd.Flags().Changed("multipart") {
		cfg.Download.Multipart = multipart
	}
	if cmd.Flags().Changed("compress-images") {
		cfg.Download.CompressImages = compressImages
	}
}

// renderEvents consumes the session event stream until the summary closes
// it, writing a plain-text progress log to stdout.
func renderEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Type {
		case events.TypeLog:
			fmt.Printf("[%s] %s\n", strings.ToUpper(ev.Log.Level), ev.Log.Message)

		case events.TypeFileProgress:
			printProgress(ev.FileProgress)

		case events.TypePostFinished:
			fmt.Printf("post %s %q: %d downloaded, %d skipped\n",
				ev.PostFinished.PostID, ev.PostFinished.Title,
				ev.PostFinished.Downloaded, ev.PostFinished.Skipped)

		case events.TypePostMissed:
			if ev.PostMissed.KeyTerm != "" {
				fmt.Printf("missed %q (no filter matched; key term: %s)\n",
					ev.PostMissed.Title, ev.PostMissed.KeyTerm)
			} else {
				fmt.Printf("missed %q (no filter matched)\n", ev.PostMissed.Title)
			}

		case events.TypeRetryPending:
			fmt.Printf("retrying %d failed file(s)...\n", len(ev.RetryPending.Files))

		case events.TypeSummary:
			printSummary(ev.Summary)
		}
	}
}

func printProgress(p *events.FileProgressEvent) {
	if len(p.Chunks) > 0 {
		var done, total int64
		active := 0
		for _, c := range p.Chunks {
			done += c.Downloaded
			total += c.Total
			if c.Active {
				active++
			}
		}
		fmt.Printf("\r%s: %s / %s (%d parts)        ",
			p.Filename, formatBytes(done), formatBytes(total), active)
		if done >= total && total > 0 {
			fmt.Println()
		}
		return
	}

	if p.Total > 0 {
		fmt.Printf("\r%s: %s / %s (%.0f%%)        ",
			p.Filename, formatBytes(p.Downloaded), formatBytes(p.Total),
			float64(p.Downloaded)/float64(p.Total)*100)
		if p.Downloaded >= p.Total {
			fmt.Println()
		}
		return
	}
	fmt.Printf("\r%s: %s        ", p.Filename, formatBytes(p.Downloaded))
}

func printSummary(s *events.SummaryEvent) {
	fmt.Println()
	if s.Cancelled {
		fmt.Println("=== Download cancelled ===")
	} else {
		fmt.Println("=== Download complete ===")
	}
	fmt.Printf("  Downloaded: %d\n", s.Downloaded)
	fmt.Printf("  Skipped:    %d\n", s.Skipped)
	if s.RetrySucceeded > 0 || s.RetryFailed > 0 {
		fmt.Printf("  Retried:    %d recovered, %d failed\n", s.RetrySucceeded, s.RetryFailed)
	}
	if len(s.KeptOriginalNames) > 0 {
		fmt.Printf("  Kept original names (%d):\n", len(s.KeptOriginalNames))
		for _, name := range s.KeptOriginalNames {
			fmt.Printf("    %s\n", name)
		}
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
