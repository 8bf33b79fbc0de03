package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wasmScope/internal/classify"
	"wasmScope/internal/config"
	"wasmScope/internal/correlate"
	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/source"
	"wasmScope/internal/wasm"
)

func runDecode(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadDecode(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}
	if cfg.Errors == "" {
		return fmt.Errorf("errors path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vocab := correlate.CW20Vocabulary()
	if len(cfg.Actions) > 0 {
		vocab = classify.NewVocabulary(cfg.Actions, nil)
	}
	classifier := classify.New(vocab)

	src, err := source.OpenJSONL(cfg.In)
	if err != nil {
		return err
	}
	defer src.Close()

	outWriter, err := newJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := newJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Strings("actions", cfg.Actions),
	)

	var total, decoded, unclassified, failed int
	for {
		msg, err := src.Next(ctx)
		if errors.Is(err, source.ErrExhausted) {
			break
		}
		if errors.Is(err, source.ErrMalformed) {
			failed++
			writeDecodeError(errWriter, model.DecodeError{Error: err.Error()})
			continue
		}
		if err != nil {
			return err
		}
		total++

		events, err := wasm.DecodeMessage(msg)
		if err != nil {
			failed++
			metrics.RecordDecodeFailure("decode")
			writeDecodeError(errWriter, model.DecodeErrorFromMessage(msg, err))
			continue
		}

		var classified model.ClassifiedMsg
		if payload, err := msg.Payload(); err == nil {
			classified = classifier.Classify(payload)
		}
		if classified.Empty() {
			unclassified++
		}

		if err := outWriter.Write(model.DecodedMessage{
			TxHash:      msg.TxHash,
			MsgIndex:    msg.MsgIndex,
			BlockHeight: msg.BlockHeight,
			Contract:    msg.Contract,
			Classified:  classified,
			Events:      events,
		}); err != nil {
			return err
		}
		decoded++
	}

	logger.Info("decode complete",
		zap.Int("total", total),
		zap.Int("decoded", decoded),
		zap.Int("unclassified", unclassified),
		zap.Int("failed", failed),
	)

	return nil
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

func writeDecodeError(writer *jsonlWriter, errRecord model.DecodeError) {
	if writer == nil {
		return
	}
	_ = writer.Write(errRecord)
}
