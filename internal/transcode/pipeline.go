package transcode

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/muselink/muselink/internal/config"
	"github.com/muselink/muselink/internal/logger"
)

// FFmpeg stderr carries both the stream header and periodic progress:
//
//	Duration: 00:03:41.32, start: 0.000000, bitrate: ...
//	size=1024kB time=00:01:23.45 bitrate=...
var (
	durationRegex = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+)\.(\d+)`)
	timeRegex     = regexp.MustCompile(`time=(\d+):(\d+):(\d+)\.(\d+)`)
)

// Options carries per-request transcode parameters.
type Options struct {
	// SeekSeconds skips into the stream before encoding starts.
	SeekSeconds float64
	// OnDuration is invoked once, after a clean ffmpeg exit, with the
	// best duration estimate scraped from stderr. May be nil.
	OnDuration func(seconds float64)
}

// Pipeline spawns ffmpeg per request and streams MP3 out of it. Input
// is pumped through stdin because the source lives on a remote share
// ffmpeg cannot open itself.
type Pipeline struct {
	ffmpegPath string
	argv       func(opts Options) []string
	log        hclog.Logger
}

func NewPipeline(cfg config.TranscodeConfig) *Pipeline {
	bitrate := cfg.BitrateKbps
	if bitrate <= 0 {
		bitrate = 192
	}
	return &Pipeline{
		ffmpegPath: cfg.FFmpegPath,
		argv: func(opts Options) []string {
			args := []string{"-hide_banner"}
			if opts.SeekSeconds > 0 {
				args = append(args, "-ss", strconv.FormatFloat(opts.SeekSeconds, 'f', 3, 64))
			}
			args = append(args,
				"-i", "pipe:0",
				"-vn",
				"-f", "mp3",
				"-b:a", fmt.Sprintf("%dk", bitrate),
				"pipe:1",
			)
			return args
		},
		log: logger.Named("transcode"),
	}
}

// Transcode starts the encoder and returns the MP3 stream. Closing the
// returned reader always tears the whole pipeline down, including a
// still-running ffmpeg process and the input stream.
func (p *Pipeline) Transcode(input io.ReadCloser, opts Options) (io.ReadCloser, error) {
	cmd := exec.Command(p.ffmpegPath, p.argv(opts)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		input.Close()
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		input.Close()
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		input.Close()
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		input.Close()
		return nil, fmt.Errorf("failed to start %s: %w", p.ffmpegPath, err)
	}
	p.log.Debug("Encoder started", "pid", cmd.Process.Pid, "seek", opts.SeekSeconds)

	run := &runningTranscode{
		cmd:        cmd,
		stdout:     stdout,
		input:      input,
		stderrDone: make(chan struct{}),
		onDuration: opts.OnDuration,
		log:        p.log,
	}

	// Pump the source into ffmpeg. Write errors are expected whenever
	// the encoder exits first (client disconnect, seek near EOF), so
	// the pump only ever closes things, never reports.
	go func() {
		_, _ = io.Copy(stdin, input)
		stdin.Close()
	}()

	go run.scrapeStderr(stderr)

	return run, nil
}

// runningTranscode is the guard around one live ffmpeg process.
type runningTranscode struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	input      io.ReadCloser
	stderrDone chan struct{}
	onDuration func(seconds float64)
	log        hclog.Logger

	mu          sync.Mutex
	durationSec float64
	lastTimeSec float64

	closeOnce sync.Once
	closeErr  error
}

func (r *runningTranscode) Read(p []byte) (int, error) {
	return r.stdout.Read(p)
}

// Close kills ffmpeg if it is still running, reaps it, and releases the
// input stream. Safe to call after a natural EOF and safe to call twice.
func (r *runningTranscode) Close() error {
	r.closeOnce.Do(func() {
		if err := r.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			r.log.Warn("Failed to kill encoder", "pid", r.cmd.Process.Pid, "error", err)
		}

		<-r.stderrDone
		waitErr := r.cmd.Wait()
		r.input.Close()

		if waitErr == nil {
			if seconds := r.bestDuration(); seconds > 0 && r.onDuration != nil {
				r.onDuration(seconds)
			}
		} else {
			r.log.Debug("Encoder did not exit cleanly", "error", waitErr)
		}
	})
	return r.closeErr
}

// scrapeStderr watches encoder chatter for the stream duration and the
// running encode position. The header Duration wins when present; pipe
// input sometimes reports N/A there, in which case the last time= value
// is the closest estimate.
func (r *runningTranscode) scrapeStderr(stderr io.Reader) {
	defer close(r.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if m := durationRegex.FindStringSubmatch(line); len(m) == 5 {
			r.mu.Lock()
			r.durationSec = clockToSeconds(m)
			r.mu.Unlock()
			continue
		}
		if m := timeRegex.FindStringSubmatch(line); len(m) == 5 {
			r.mu.Lock()
			r.lastTimeSec = clockToSeconds(m)
			r.mu.Unlock()
		}
	}
}

func (r *runningTranscode) bestDuration() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.durationSec > 0 {
		return r.durationSec
	}
	return r.lastTimeSec
}

func clockToSeconds(m []string) float64 {
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	frac, _ := strconv.Atoi(m[4])

	divisor := 1.0
	for i := 0; i < len(m[4]); i++ {
		divisor *= 10
	}
	return float64(hours*3600+mins*60+secs) + float64(frac)/divisor
}
