// tryon は人物画像と衣服画像から試着画像を1枚生成するコマンドです。
//
//	tryon -subject me.jpg -garment shirt.png [-out result.png] [-key API_KEY] [-seed N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shouni/gemini-fitting-room/pkg/config"
	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/fittingroom"
	"github.com/shouni/gemini-fitting-room/pkg/generator"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
)

var (
	// errNoImage は生成結果に画像が含まれなかったことを表します。
	errNoImage = errors.New("no image returned")
	// errInvalidSeed は -seed が int32 に収まらないことを表します。
	errInvalidSeed = errors.New("seed must be a 32-bit integer")
)

const defaultOutputBase = "result"

// よく使う拡張子を優先する
var preferredExtensions = map[string]string{
	imgutil.MimeTypeJPEG: ".jpg",
	imgutil.MimeTypePNG:  ".png",
	imgutil.MimeTypeWebP: ".webp",
}

type options struct {
	subject string
	garment string
	out     string
	key     string
	seed    *int64
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("tryon", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.subject, "subject", "", "人物画像のパス (JPEG/PNG/WebP)")
	fs.StringVar(&opts.garment, "garment", "", "衣服画像のパス (JPEG/PNG/WebP)")
	fs.StringVar(&opts.out, "out", "", "出力先のパス (省略時は result.<生成画像の拡張子>)")
	fs.StringVar(&opts.key, "key", "", "Google API キー (省略時は GEMINI_API_KEY)")
	seed := fs.Int64("seed", 0, "乱数シード (省略時はランダム)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			opts.seed = seed
		}
	})
	if opts.seed != nil && (*opts.seed < math.MinInt32 || *opts.seed > math.MaxInt32) {
		return nil, fmt.Errorf("%w: %d", errInvalidSeed, *opts.seed)
	}
	if opts.key == "" {
		opts.key = os.Getenv("GEMINI_API_KEY")
	}
	if opts.subject == "" || opts.garment == "" || strings.TrimSpace(opts.key) == "" {
		return nil, domain.ErrMissingInput
	}
	return opts, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag のエラーは FlagSet が出力済み
		switch {
		case errors.Is(err, domain.ErrMissingInput):
			fmt.Fprintln(os.Stderr, "tryon: -subject, -garment と API キーが必要です:", err)
		case errors.Is(err, errInvalidSeed):
			fmt.Fprintln(os.Stderr, "tryon:", err)
		}
		os.Exit(2)
	}

	core, err := generator.NewGeminiImageCore(generator.NewGenAIClientFactory(), cfg.GeminiModel)
	if err != nil {
		slog.Error("初期化に失敗しました", "error", err)
		os.Exit(1)
	}
	compositor, err := generator.NewGeminiGenerator(core)
	if err != nil {
		slog.Error("初期化に失敗しました", "error", err)
		os.Exit(1)
	}

	var intakeOpts []fittingroom.IntakeOption
	if cfg.CompressUploads {
		intakeOpts = append(intakeOpts, fittingroom.WithCompression(cfg.CompressionQuality))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = run(ctx, opts, compositor, fittingroom.NewIntake(cfg.MaxUploadBytes, intakeOpts...), cfg)
	if err != nil {
		slog.Error("試着画像を生成できませんでした", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, compositor generator.Compositor, intake *fittingroom.Intake, cfg *config.Config) error {
	sess, err := fittingroom.NewSession("cli", compositor, fittingroom.WithGenerationTimeout(cfg.GenerationTimeout))
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.SetCredential(opts.key)
	for slot, path := range map[domain.Slot]string{
		domain.SlotSubject: opts.subject,
		domain.SlotGarment: opts.garment,
	} {
		img, err := intake.FromFile(slot, path)
		if err != nil {
			return err
		}
		if err := sess.SelectImage(img); err != nil {
			return err
		}
	}

	// Ctrl-C で生成を中断する
	stopCancel := context.AfterFunc(ctx, func() { sess.Cancel() })
	defer stopCancel()

	res, err := sess.Generate(context.WithoutCancel(ctx), opts.seed)
	if err != nil {
		return err
	}
	if res == nil {
		return errNoImage
	}

	data, err := imgutil.Decode(res.Image.Data)
	if err != nil {
		return err
	}
	out := outputPath(opts.out, res.Image.MimeType)
	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("出力先ディレクトリの作成に失敗しました: %w", err)
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("結果の書き込みに失敗しました: %w", err)
	}

	slog.Info("試着画像を保存しました",
		"path", out,
		"mime_type", res.Image.MimeType,
		"seed", res.UsedSeed,
		"finish_reason", res.FinishReason,
	)
	return nil
}

// outputPath は保存先を決めます。
// -out が省略された場合は MIME タイプから拡張子を決め、指定された拡張子が合わない場合は警告します。
func outputPath(out, mimeType string) string {
	if out == "" {
		return defaultOutputBase + extensionFor(mimeType)
	}
	if !extensionMatches(out, mimeType) {
		slog.Warn("出力先の拡張子が生成画像の形式と一致しません", "path", out, "mime_type", mimeType)
	}
	return out
}

func extensionFor(mimeType string) string {
	if ext, ok := preferredExtensions[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".png"
}

func extensionMatches(path, mimeType string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == preferredExtensions[mimeType] {
		return true
	}
	exts, _ := mime.ExtensionsByType(mimeType)
	return slices.Contains(exts, ext)
}
