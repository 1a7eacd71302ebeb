// Package tools drives the external programs that turn extracted capture
// files into derived artifacts. Tool failures are reported, never fatal.
package tools

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tendant/nd3-capture-pipeline/internal/naming"
)

// Tool names used in reports and metrics
const (
	ToolChannelSplit = "channel_split"
	ToolRawConvert   = "raw_convert"
	ToolReconstruct  = "reconstruct"
)

// Options configures the orchestrator
type Options struct {
	ImageTool       string
	ND3Binary       string
	CalibrationFile string
	ReconWorkers    int
}

// Report summarizes one orchestration run
type Report struct {
	mu          sync.Mutex
	Invocations int
	Failures    []*ToolError
	Skipped     []string
}

func (r *Report) invoked(err *ToolError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invocations++
	if err != nil {
		r.Failures = append(r.Failures, err)
	}
}

func (r *Report) skip(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, step)
}

// String renders the report for logging
func (r *Report) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := fmt.Sprintf("%d invocations, %d failed", r.Invocations, len(r.Failures))
	if len(r.Skipped) > 0 {
		s += ", skipped: " + strings.Join(r.Skipped, ",")
	}
	return s
}

// Orchestrator runs channel splitting, raw conversion and reconstruction
// over one output directory, in that order
type Orchestrator struct {
	opts     Options
	runner   CommandRunner
	splitter ChannelSplitter
	observe  func(tool string, err error)
}

// NewOrchestrator creates an orchestrator. A nil splitter uses ImageMagick
// through runner.
func NewOrchestrator(opts Options, runner CommandRunner, splitter ChannelSplitter) *Orchestrator {
	if opts.ImageTool == "" {
		opts.ImageTool = "convert"
	}
	if opts.ReconWorkers < 1 {
		opts.ReconWorkers = 1
	}
	if splitter == nil {
		splitter = &ImageMagickSplitter{Tool: opts.ImageTool, Runner: runner}
	}
	return &Orchestrator{opts: opts, runner: runner, splitter: splitter}
}

// OnInvocation registers a callback invoked after every tool invocation
func (o *Orchestrator) OnInvocation(fn func(tool string, err error)) {
	o.observe = fn
}

// Run performs every step against dir. Each step re-reads the directory so
// later steps see earlier outputs.
func (o *Orchestrator) Run(ctx context.Context, jobID, dir string) *Report {
	report := &Report{}

	o.splitChannels(ctx, jobID, dir, report)
	o.convertRaw(ctx, jobID, dir, report)
	o.reconstruct(ctx, jobID, dir, report)

	return report
}

func (o *Orchestrator) splitChannels(ctx context.Context, jobID, dir string, report *Report) {
	names, err := listFiles(dir)
	if err != nil {
		log.Printf("[%s] Warning: cannot list %s: %v", jobID, dir, err)
		report.skip(ToolChannelSplit)
		return
	}

	var originals []string
	for _, name := range names {
		if naming.IsOriginalColorImage(name) {
			originals = append(originals, name)
		}
	}
	if len(originals) != 1 {
		log.Printf("[%s] Warning: expected exactly one original color image, found %d - skipping channel split", jobID, len(originals))
		report.skip(ToolChannelSplit)
		return
	}

	src := filepath.Join(dir, originals[0])
	for _, ch := range naming.Channels {
		dst := filepath.Join(dir, naming.ChannelImageName(originals[0], ch))
		out, err := o.splitter.Split(ctx, src, ch, dst)
		o.record(jobID, ToolChannelSplit, originals[0]+":"+ch.Name, out, err, report)
	}
}

func (o *Orchestrator) convertRaw(ctx context.Context, jobID, dir string, report *Report) {
	names, err := listFiles(dir)
	if err != nil {
		log.Printf("[%s] Warning: cannot list %s: %v", jobID, dir, err)
		report.skip(ToolRawConvert)
		return
	}

	for _, name := range names {
		if !naming.IsRaw(name) {
			continue
		}
		size := naming.ResolutionFor(name)
		if size == "" {
			log.Printf("[%s] Warning: unknown depth mode for %s - skipping conversion", jobID, name)
			continue
		}
		raw := filepath.Join(dir, name)
		out, err := o.exec(ctx, jobID, o.opts.ImageTool, RawConvertArgs(raw, size, naming.ConvertedName(raw))...)
		o.record(jobID, ToolRawConvert, name, out, err, report)
	}
}

// RawConvertArgs are the ImageMagick arguments that normalize a 16-bit raw frame
func RawConvertArgs(raw, size, dst string) []string {
	return []string{"-size", size, "-depth", "16", "-endian", "LSB", "gray:" + raw, "-normalize", dst}
}

func (o *Orchestrator) reconstruct(ctx context.Context, jobID, dir string, report *Report) {
	if o.opts.ND3Binary == "" || o.opts.CalibrationFile == "" {
		log.Printf("[%s] Error: ND3_BINARY or CALIBRATION not configured - skipping reconstruction", jobID)
		report.skip(ToolReconstruct)
		return
	}

	names, err := listFiles(dir)
	if err != nil {
		log.Printf("[%s] Warning: cannot list %s: %v", jobID, dir, err)
		report.skip(ToolReconstruct)
		return
	}

	var depth string
	var images []string
	for _, name := range names {
		if depth == "" && naming.IsRaw(name) && naming.IsDepth(name) {
			depth = name
		}
		if naming.IsColorImage(name) {
			images = append(images, name)
		}
	}
	if depth == "" {
		log.Printf("[%s] Warning: no raw depth file found - skipping reconstruction", jobID)
		report.skip(ToolReconstruct)
		return
	}

	rawDepth := filepath.Join(dir, depth)

	var g errgroup.Group
	g.SetLimit(o.opts.ReconWorkers)
	for _, img := range images {
		g.Go(func() error {
			args := ReconstructArgs(o.opts.CalibrationFile, filepath.Join(dir, img), rawDepth, filepath.Join(dir, naming.PointCloudName(img)))
			out, err := o.exec(ctx, jobID, o.opts.ND3Binary, args...)
			o.record(jobID, ToolReconstruct, img, out, err, report)
			return nil
		})
	}
	_ = g.Wait()
}

// ReconstructArgs are the ND3 binary arguments for one color image
func ReconstructArgs(calibration, color, rawDepth, ply string) []string {
	return []string{calibration, color, rawDepth, ply}
}

func (o *Orchestrator) exec(ctx context.Context, jobID, name string, args ...string) (Output, error) {
	log.Printf("[%s] $ %s", jobID, CommandLine(name, args...))
	return o.runner.Run(ctx, name, args...)
}

func (o *Orchestrator) record(jobID, tool, file string, out Output, err error, report *Report) {
	if s := strings.TrimSpace(out.Stdout); s != "" {
		log.Printf("[%s] %s %s stdout: %s", jobID, tool, file, s)
	}

	var toolErr *ToolError
	if err != nil {
		toolErr = &ToolError{Tool: tool, File: file, Stderr: out.Stderr, Err: err}
		log.Printf("[%s] Warning: %v", jobID, toolErr)
	} else {
		if s := strings.TrimSpace(out.Stderr); s != "" {
			log.Printf("[%s] %s %s stderr: %s", jobID, tool, file, s)
		}
		log.Printf("[%s] ✓ %s %s", jobID, tool, file)
	}

	report.invoked(toolErr)
	if o.observe != nil {
		o.observe(tool, err)
	}
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
