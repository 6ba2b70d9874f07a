package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	gcmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-static-export/export"
)

const (
	defaultBatchWidth  = 700
	defaultBatchHeight = 500
)

// BatchItem describes one plot to render into a file.
type BatchItem struct {
	Format export.Format   `json:"format"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	Scale  float64         `json:"scale"`
	Plot   json.RawMessage `json:"plot"`
	Out    string          `json:"out"`
}

// Request converts the item into an export request, filling defaults.
func (item BatchItem) Request() export.ExportRequest {
	req := export.ExportRequest{
		Format: export.NormalizeFormat(item.Format),
		Width:  item.Width,
		Height: item.Height,
		Scale:  item.Scale,
		Plot:   item.Plot,
	}
	if req.Format == "" {
		req.Format = export.FormatPNG
	}
	if req.Width == 0 {
		req.Width = defaultBatchWidth
	}
	if req.Height == 0 {
		req.Height = defaultBatchHeight
	}
	if req.Scale == 0 {
		req.Scale = 1
	}
	return req
}

// BatchLoader loads batch items from a source.
type BatchLoader func(ctx context.Context) ([]BatchItem, error)

// BatchCommand wires CLI/Cron execution for plot batches.
type BatchCommand struct {
	writer     FileWriter
	loader     BatchLoader
	cliConfig  gcmd.CLIConfig
	cronConfig gcmd.HandlerConfig
	limits     BatchLimits
	sleep      func(time.Duration)
}

// BatchOption customizes batch commands.
type BatchOption func(*BatchCommand)

// BatchLimits bounds batch execution throughput.
type BatchLimits struct {
	MaxItems    int
	MinInterval time.Duration
}

// WithBatchCLIConfig overrides CLI configuration.
func WithBatchCLIConfig(cfg gcmd.CLIConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cliConfig = cfg
	}
}

// WithBatchCronConfig overrides cron configuration.
func WithBatchCronConfig(cfg gcmd.HandlerConfig) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.cronConfig = cfg
	}
}

// WithBatchLimits overrides batch execution limits.
func WithBatchLimits(limits BatchLimits) BatchOption {
	return func(cmd *BatchCommand) {
		cmd.limits = limits
	}
}

// NewBatchCommand creates a plot batch CLI/Cron command.
func NewBatchCommand(writer FileWriter, loader BatchLoader, opts ...BatchOption) *BatchCommand {
	cmd := &BatchCommand{
		writer: writer,
		loader: loader,
		cliConfig: gcmd.CLIConfig{
			Path:        []string{"plots-batch"},
			Description: "Render a batch of plots to files",
			Group:       "plots",
		},
		cronConfig: gcmd.HandlerConfig{Expression: "0 * * * *"},
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cmd)
		}
	}
	return cmd
}

// CronHandler renders the loader's batch.
func (c *BatchCommand) CronHandler() func() error {
	return func() error {
		_, err := c.Run(context.Background(), "")
		return err
	}
}

// CronOptions returns cron configuration.
func (c *BatchCommand) CronOptions() gcmd.HandlerConfig {
	if c == nil {
		return gcmd.HandlerConfig{}
	}
	return c.cronConfig
}

// CLIHandler exposes the CLI handler.
func (c *BatchCommand) CLIHandler() any {
	return &batchCLI{cmd: c}
}

// CLIOptions returns CLI configuration.
func (c *BatchCommand) CLIOptions() gcmd.CLIConfig {
	if c == nil {
		return gcmd.CLIConfig{}
	}
	return c.cliConfig
}

// Run renders every item from the file at from, or from the loader when from
// is empty, and returns the number of files written. It stops at the first
// failure.
func (c *BatchCommand) Run(ctx context.Context, from string) (int, error) {
	if c == nil {
		return 0, errors.New("batch command is nil", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	if c.writer == nil {
		return 0, errors.New("file writer is required", errors.CategoryValidation).
			WithTextCode("WRITER_REQUIRED")
	}

	items, err := c.loadItems(ctx, from)
	if err != nil {
		return 0, err
	}

	count := 0
	for i, item := range items {
		if c.limits.MaxItems > 0 && count >= c.limits.MaxItems {
			break
		}
		if strings.TrimSpace(item.Out) == "" {
			return count, errors.New(fmt.Sprintf("batch item %d: output path is required", i), errors.CategoryValidation).
				WithTextCode("OUTPUT_PATH_REQUIRED")
		}
		if _, err := c.writer.WriteToFile(ctx, item.Request(), item.Out); err != nil {
			msg := fmt.Sprintf("batch item %d (%s)", i, item.Out)
			return count, export.AsGoError(export.NewError(export.KindFromError(err), msg, err))
		}
		count++
		if c.limits.MinInterval > 0 && c.sleep != nil && i < len(items)-1 {
			c.sleep(c.limits.MinInterval)
		}
	}
	return count, nil
}

func (c *BatchCommand) loadItems(ctx context.Context, from string) ([]BatchItem, error) {
	if strings.TrimSpace(from) != "" {
		return LoadBatchFile(from)
	}
	if c.loader == nil {
		return nil, errors.New("batch loader not configured", errors.CategoryValidation).
			WithTextCode("LOADER_REQUIRED")
	}
	return c.loader(ctx)
}

type batchCLI struct {
	cmd  *BatchCommand
	From string `kong:"name='from',help='Path to a JSON array of plot batch items'"`
}

func (c *batchCLI) Run() error {
	if c == nil || c.cmd == nil {
		return errors.New("batch command is required", errors.CategoryInternal).
			WithTextCode("BATCH_CMD_NIL")
	}
	_, err := c.cmd.Run(context.Background(), c.From)
	return err
}

// LoadBatchFile reads a JSON array of batch items.
func LoadBatchFile(path string) ([]BatchItem, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryExternal, "read batch file failed").
			WithTextCode("BATCH_FILE_READ")
	}

	var items []BatchItem
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "batch file invalid JSON").
			WithTextCode("BATCH_FILE_INVALID")
	}
	return items, nil
}
