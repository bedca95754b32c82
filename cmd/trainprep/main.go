// trainprep assembles the prescription fine-tuning dataset: built-in seed
// pairs plus an optional user dataset, split train/eval and written as
// JSONL for the external seq2seq trainer.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/osoji/rxscan/internal/finetune"
)

func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dataPath  = flag.String("data", "", "extra dataset JSON file (array of {input_text, output_text})")
		outDir    = flag.String("out", "./dataset", "output directory for train.jsonl and eval.jsonl")
		tokPath   = flag.String("tokenizer", "", "tokenizer.json path for token accounting (optional)")
		seed      = flag.Int64("seed", 42, "shuffle seed for the train/eval split")
		evalFrac  = flag.Float64("eval-fraction", 0.2, "fraction of pairs held out for evaluation")
		seedsOnly = flag.Bool("seeds-only", false, "ignore --data and emit only the built-in pairs")
	)
	flag.Parse()

	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *evalFrac < 0 || *evalFrac >= 1 {
		printError("Error: --eval-fraction must be within [0,1)\n")
		os.Exit(1)
	}

	pairs := finetune.SeedPairs()
	if *dataPath != "" && !*seedsOnly {
		extra, err := finetune.LoadPairs(*dataPath)
		if err != nil {
			logger.Error("failed to load dataset", "path", *dataPath, "error", err)
			os.Exit(1)
		}
		logger.Info("loaded extra pairs", "path", *dataPath, "count", len(extra))
		pairs = append(pairs, extra...)
	}

	split := finetune.SplitPairs(pairs, *evalFrac, *seed)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Error("failed to create output directory", "dir", *outDir, "error", err)
		os.Exit(1)
	}
	trainPath := filepath.Join(*outDir, "train.jsonl")
	evalPath := filepath.Join(*outDir, "eval.jsonl")
	if err := finetune.WriteJSONL(trainPath, split.Train); err != nil {
		logger.Error("failed to write train split", "error", err)
		os.Exit(1)
	}
	if err := finetune.WriteJSONL(evalPath, split.Eval); err != nil {
		logger.Error("failed to write eval split", "error", err)
		os.Exit(1)
	}
	logger.Info("dataset written",
		"train", trainPath, "train_pairs", len(split.Train),
		"eval", evalPath, "eval_pairs", len(split.Eval))

	var stats finetune.Stats
	if *tokPath != "" {
		counter, err := finetune.LoadTokenizer(*tokPath)
		if err != nil {
			logger.Error("failed to load tokenizer", "path", *tokPath, "error", err)
			os.Exit(1)
		}
		perPair, s, err := finetune.Account(counter, pairs)
		if err != nil {
			logger.Error("token accounting failed", "error", err)
			os.Exit(1)
		}
		stats = s
		for i, pt := range perPair {
			if pt.InputTruncated || pt.TargetTruncated {
				logger.Warn("pair exceeds sequence limits",
					"pair", i,
					"input_tokens", pt.InputTokens,
					"target_tokens", pt.TargetTokens,
					"max_source", finetune.MaxSourceTokens,
					"max_target", finetune.MaxTargetTokens)
			}
		}
	}

	fmt.Printf("Dataset preparation complete!\n")
	fmt.Printf("- Pairs: %d (train %d, eval %d)\n", len(pairs), len(split.Train), len(split.Eval))
	fmt.Printf("- Output: %s\n", *outDir)
	if *tokPath != "" {
		fmt.Printf("- Max tokens: input %d, target %d (limit %d/%d)\n",
			stats.MaxInputTokens, stats.MaxTargetTokens, finetune.MaxSourceTokens, finetune.MaxTargetTokens)
		fmt.Printf("- Truncated: %d inputs, %d targets\n", stats.InputTruncated, stats.TargetTruncated)
	}
}
