package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/gptgraph/internal/corpus"
	"github.com/born-ml/gptgraph/internal/generate"
	"github.com/born-ml/gptgraph/internal/gpt"
	"github.com/born-ml/gptgraph/internal/optim"
	"github.com/born-ml/gptgraph/internal/parallel"
	"github.com/born-ml/gptgraph/internal/serialization"
	"github.com/born-ml/gptgraph/internal/tokenizer"
)

const tokenizerFile = "tokenizer.json"

func runTrain(args []string) error {
	fs := newFlagSet("train")
	cfg := gpt.DefaultConfig()
	registerModelFlags(fs, &cfg)
	dataPath := fs.String("data", "dataset.txt", "Training text file")
	dir := fs.String("checkpoint", "train_data", "Checkpoint directory, loaded when present")
	tokName := fs.String("tokenizer", tokenizer.TypeChar, "Tokenizer: char, cl100k_base, p50k_base or r50k_base")
	optName := fs.String("optimizer", "adam", "Optimizer: adam or sgd")
	momentum := fs.Float64("momentum", 0.9, "SGD momentum")
	tc := gpt.DefaultTrainConfig()
	fs.IntVar(&tc.Steps, "steps", tc.Steps, "Optimizer steps to run")
	fs.IntVar(&tc.BatchSize, "batch", tc.BatchSize, "Samples per step")
	fs.IntVar(&tc.CheckpointEvery, "every", tc.CheckpointEvery, "Steps between checkpoints")
	fs.Int64Var(&tc.Seed, "seed", 0, "Random seed for initialization, sampling and dropout (0 = clock)")
	workers := fs.Int("workers", runtime.NumCPU(), "Parallel sample workers")
	minLR := fs.Float64("lr-min", 3e-5, "Learning rate after decay")
	maxLR := fs.Float64("lr-max", 3e-4, "Peak learning rate")
	warmup := fs.Int("warmup", 100, "Warmup steps")
	decay := fs.Int("decay", 50000, "Decay steps after warmup")
	_ = fs.Parse(args)

	tc.CheckpointDir = *dir
	tc.Schedule = optim.WarmupCosine(float32(*minLR), float32(*maxLR), *warmup, *decay)
	tc.Parallel = parallel.Config{Enabled: *workers > 1, NumWorkers: *workers, MinChunkSize: 1}

	store := serialization.NewStore(*dir)
	var tok tokenizer.Tokenizer
	if store.Exists() {
		klog.Infof("Resuming from %s; model flags are taken from the checkpoint", *dir)
		var err error
		if cfg, err = gpt.ReadConfig(*dir); err != nil {
			klog.Fatalf("Failed to read checkpoint: %v", err)
		}
		if tok, err = loadTokenizer(store); err != nil {
			klog.Fatalf("Failed to read checkpoint: %v", err)
		}
	} else {
		var err error
		if tok, err = newTokenizer(*tokName, *dataPath); err != nil {
			return err
		}
		cfg.VocabSize = tok.VocabSize()
	}

	data, err := corpus.Load(*dataPath, tok)
	if err != nil {
		return err
	}
	klog.Infof("Corpus: %d tokens, vocabulary %d", data.Len(), tok.VocabSize())

	opt, err := newOptimizer(*optName, float32(*momentum))
	if err != nil {
		return err
	}
	initSeed := tc.Seed
	if initSeed == 0 {
		initSeed = time.Now().UnixNano()
	}
	model, err := gpt.New(rand.New(rand.NewSource(initSeed)), cfg, opt) //nolint:gosec // Initialization is not security-sensitive
	if err != nil {
		return err
	}
	fmt.Printf("Number of parameters: %d\n", model.NumParams())

	loaded, err := model.Load(*dir)
	if err != nil {
		klog.Fatalf("Failed to load checkpoint: %v", err)
	}
	if loaded {
		klog.Infof("Loaded checkpoint at step %d", model.Optimizer().StepNum())
	} else if err := model.Save(*dir); err != nil {
		klog.Fatalf("Failed to write checkpoint: %v", err)
	}

	desc, err := tokenizer.Describe(tok)
	if err != nil {
		return err
	}
	if err := store.SaveJSON(tokenizerFile, desc); err != nil {
		klog.Fatalf("Failed to write checkpoint: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = model.Train(ctx, data, tc)
	switch {
	case errors.Is(err, gpt.ErrCheckpoint):
		klog.Fatalf("Failed to write checkpoint: %v", err)
	case errors.Is(err, context.Canceled):
		klog.Infof("Interrupted at step %d; saving", model.Optimizer().StepNum())
		if err := model.Save(*dir); err != nil {
			klog.Fatalf("Failed to write checkpoint: %v", err)
		}
		return nil
	}
	return err
}

func runGenerate(args []string) error {
	fs := newFlagSet("generate")
	dir := fs.String("checkpoint", "train_data", "Checkpoint directory")
	prompt := fs.String("prompt", "\n", "Prompt text")
	gc := generate.DefaultGenerateConfig()
	fs.IntVar(&gc.MaxTokens, "count", gc.MaxTokens, "Tokens to generate")
	temperature := fs.Float64("temperature", float64(gc.Sampling.Temperature), "Sampling temperature (0 = greedy)")
	fs.IntVar(&gc.Sampling.TopK, "top-k", gc.Sampling.TopK, "Sample only from the k most likely tokens (0 = all)")
	repeat := fs.Float64("repeat-penalty", float64(gc.Sampling.RepeatPenalty), "Penalty for recently generated tokens (1 = none)")
	fs.Int64Var(&gc.Sampling.Seed, "seed", gc.Sampling.Seed, "Sampling seed (-1 = random)")
	_ = fs.Parse(args)

	gc.Sampling.Temperature = float32(*temperature)
	gc.Sampling.RepeatPenalty = float32(*repeat)

	store := serialization.NewStore(*dir)
	if !store.Exists() {
		return fmt.Errorf("checkpoint %s not found; run 'gptgraph train' first", *dir)
	}
	cfg, err := gpt.ReadConfig(*dir)
	if err != nil {
		klog.Fatalf("Failed to read checkpoint: %v", err)
	}
	tok, err := loadTokenizer(store)
	if err != nil {
		klog.Fatalf("Failed to read checkpoint: %v", err)
	}

	model, err := gpt.New(rand.New(rand.NewSource(1)), cfg, nil) //nolint:gosec // Overwritten by the checkpoint
	if err != nil {
		return err
	}
	if _, err := model.Load(*dir); err != nil {
		klog.Fatalf("Failed to load checkpoint: %v", err)
	}

	ids, err := tok.Encode(*prompt)
	if err != nil {
		return fmt.Errorf("encode prompt: %w", err)
	}
	_, err = model.Generate(ids, gc, func(id int) {
		text, err := tok.Decode([]int{id})
		if err != nil {
			klog.Warningf("Failed to decode token %d: %v", id, err)
			return
		}
		fmt.Print(text)
	})
	fmt.Println()
	return err
}

func runParams(args []string) error {
	fs := newFlagSet("params")
	cfg := gpt.DefaultConfig()
	registerModelFlags(fs, &cfg)
	fs.IntVar(&cfg.VocabSize, "vocab", 65, "Vocabulary size")
	dir := fs.String("checkpoint", "", "Read the configuration from this checkpoint instead")
	_ = fs.Parse(args)

	if *dir != "" {
		var err error
		if cfg, err = gpt.ReadConfig(*dir); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Printf("Number of parameters: %d\n", cfg.NumParams())
	return nil
}

// registerModelFlags binds the hyperparameter flags to cfg.
func registerModelFlags(fs *flag.FlagSet, cfg *gpt.Config) {
	fs.IntVar(&cfg.EmbeddingDegree, "embedding", cfg.EmbeddingDegree, "Embedding width")
	fs.IntVar(&cfg.ContextLength, "context", cfg.ContextLength, "Context length in tokens")
	fs.IntVar(&cfg.NumLayers, "layers", cfg.NumLayers, "Number of transformer layers")
	fs.IntVar(&cfg.NumHeads, "heads", cfg.NumHeads, "Attention heads per layer")
	fs.IntVar(&cfg.HeadSize, "head-size", cfg.HeadSize, "Width of each attention head")
	fs.IntVar(&cfg.NumHiddens, "hiddens", cfg.NumHiddens, "Extra feed-forward hidden layers")
	fs.Func("dropout", "Dropout probability during training (default 0)", func(s string) error {
		p, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return err
		}
		cfg.Dropout = float32(p)
		return nil
	})
}

func newTokenizer(name, dataPath string) (tokenizer.Tokenizer, error) {
	if name != tokenizer.TypeChar {
		tok, err := tokenizer.NewTikToken(name)
		if err != nil {
			return nil, err
		}
		return tok, nil
	}
	//nolint:gosec // G304: corpus path comes from the operator
	text, err := os.ReadFile(dataPath)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	if len(text) == 0 {
		return nil, fmt.Errorf("%s: %w", dataPath, corpus.ErrEmpty)
	}
	return tokenizer.NewChar(string(text)), nil
}

func loadTokenizer(store *serialization.Store) (tokenizer.Tokenizer, error) {
	var desc tokenizer.Descriptor
	if err := store.LoadJSON(tokenizerFile, &desc); err != nil {
		return nil, err
	}
	return desc.Tokenizer()
}

func newOptimizer(name string, momentum float32) (optim.Optimizer, error) {
	switch name {
	case "adam":
		return optim.NewAdam(optim.AdamConfig{}), nil
	case "sgd":
		return optim.NewSGD(optim.SGDConfig{Momentum: momentum}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}
