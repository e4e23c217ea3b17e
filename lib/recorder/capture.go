// Package recorder runs the capture process that writes session data to
// local storage. It implements the vision.SessionRecorder capability: one
// session at a time, internal sessions placed in region buckets, external
// sessions at a caller-provided path.
package recorder

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/nrednav/cuid2"
	"golang.org/x/sys/unix"

	"github.com/visiondrive/agent/lib/logger"
	"github.com/visiondrive/agent/lib/store"
	"github.com/visiondrive/agent/lib/vision"
)

const (
	// arbitrary value to indicate we have not yet received an exit code from the process
	exitCodeInitValue = math.MinInt

	// the exit codes returned by the stdlib:
	// -1 if the process hasn't exited yet or was terminated by a signal
	// 0 if the process exited successfully
	// >0 if the process exited with a non-zero exit code
	exitCodeProcessDoneMinValue = -1

	// bucket used for user-requested sessions at explicit paths
	externalBucket = "external"
)

// Catalog receives finished recordings. Satisfied by *store.Store.
type Catalog interface {
	Put(ctx context.Context, rec store.Recording) error
}

// CaptureParams configures the capture binary for a session.
type CaptureParams struct {
	SensorID    *int
	SampleHz    *int
	MaxSizeInMB *int
	// MaxDurationInSeconds optionally limits the total session time. If nil there is no duration limit.
	MaxDurationInSeconds *int
	OutputRoot           *string
}

func (p CaptureParams) Validate() error {
	if p.OutputRoot == nil {
		return fmt.Errorf("output root is required")
	}
	if p.SensorID == nil {
		return fmt.Errorf("sensor id is required")
	}
	if p.SampleHz == nil {
		return fmt.Errorf("sample rate is required")
	}
	if p.MaxSizeInMB == nil {
		return fmt.Errorf("max size in MB is required")
	}
	if p.MaxDurationInSeconds != nil && *p.MaxDurationInSeconds <= 0 {
		return fmt.Errorf("max duration must be greater than 0 seconds")
	}
	return nil
}

// CaptureRecorder encapsulates the capture process lifecycle. Thread-safe;
// at most one session runs at a time.
type CaptureRecorder struct {
	mu sync.Mutex

	binaryPath string // path to the capture binary to execute
	params     CaptureParams
	catalog    Catalog
	active     *captureSession
}

type captureSession struct {
	id         string
	bucket     string
	outputPath string
	cmd        *exec.Cmd
	startTime  time.Time
	endTime    time.Time
	captureErr error
	exitCode   int
	exited     chan struct{}
}

// NewCaptureRecorder returns a recorder that launches binaryPath for each
// session. Finished sessions are added to the catalog.
func NewCaptureRecorder(binaryPath string, params CaptureParams, catalog Catalog) (*CaptureRecorder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &CaptureRecorder{
		binaryPath: binaryPath,
		params:     params,
		catalog:    catalog,
	}, nil
}

// StartInternal begins an agent-driven session in the given bucket under the
// output root.
func (cr *CaptureRecorder) StartInternal(ctx context.Context, bucket string) error {
	id := cuid2.Generate()
	dir := filepath.Join(*cr.params.OutputRoot, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bucket dir: %w", err)
	}
	return cr.start(ctx, &captureSession{
		id:         id,
		bucket:     bucket,
		outputPath: filepath.Join(dir, fmt.Sprintf("%s.vdr", id)),
	})
}

// StartExternal begins a user-requested session at an explicit path. The
// path must be absolute and its parent directory must exist.
func (cr *CaptureRecorder) StartExternal(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q is not absolute", vision.ErrInvalidPath, path)
	}
	if info, err := os.Stat(filepath.Dir(path)); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: parent directory of %q does not exist", vision.ErrInvalidPath, path)
	}
	return cr.start(ctx, &captureSession{
		id:         cuid2.Generate(),
		bucket:     externalBucket,
		outputPath: path,
	})
}

func (cr *CaptureRecorder) start(ctx context.Context, sess *captureSession) error {
	log := logger.FromContext(ctx)

	cr.mu.Lock()
	if cr.active != nil {
		cr.mu.Unlock()
		return fmt.Errorf("recording already in progress")
	}

	sess.exitCode = exitCodeInitValue
	sess.startTime = time.Now()
	sess.exited = make(chan struct{})

	args := captureArgs(cr.params, sess.outputPath)
	log.Info("starting capture process", "id", sess.id, "bucket", sess.bucket, "cmd", cr.binaryPath)

	cmd := exec.Command(cr.binaryPath, args...)
	// create process group to ensure all processes are signaled together
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stderr = os.Stderr
	cmd.Stdout = os.Stdout
	sess.cmd = cmd
	cr.active = sess
	cr.mu.Unlock()

	if err := cmd.Start(); err != nil {
		cr.mu.Lock()
		sess.captureErr = err
		close(sess.exited)
		cr.active = nil
		cr.mu.Unlock()
		return fmt.Errorf("failed to start capture process: %w", err)
	}

	go cr.waitForCommand(ctx, sess)

	// Check for startup errors before returning
	if err := waitForChan(ctx, 250*time.Millisecond, sess.exited); err == nil {
		cr.mu.Lock()
		defer cr.mu.Unlock()
		cr.active = nil
		return fmt.Errorf("capture process exited during startup: %w", sess.captureErr)
	}

	return nil
}

// Stop gracefully ends the active session using a multi-phase shutdown, then
// catalogs the finished file. With no active session it is a no-op.
func (cr *CaptureRecorder) Stop(ctx context.Context) error {
	cr.mu.Lock()
	sess := cr.active
	cr.active = nil
	cr.mu.Unlock()

	if sess == nil {
		logger.FromContext(ctx).Warn("stop requested with no active capture session")
		return nil
	}

	err := sess.shutdownInPhases(ctx, []shutdownPhase{
		{"wake_and_interrupt", []unix.Signal{unix.SIGCONT, unix.SIGINT}, 5 * time.Second, "graceful stop"},
		{"retry_interrupt", []unix.Signal{unix.SIGINT}, 3 * time.Second, "retry graceful stop"},
		{"terminate", []unix.Signal{unix.SIGTERM}, 250 * time.Millisecond, "forceful termination"},
		{"kill", []unix.Signal{unix.SIGKILL}, 100 * time.Millisecond, "immediate kill"},
	})
	if err != nil {
		return err
	}
	return cr.finalize(ctx, sess)
}

// IsRecording reports whether a session is currently active.
func (cr *CaptureRecorder) IsRecording() bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return cr.active != nil && cr.active.exitCode < exitCodeProcessDoneMinValue
}

// finalize stats the finished file and adds it to the catalog.
func (cr *CaptureRecorder) finalize(ctx context.Context, sess *captureSession) error {
	log := logger.FromContext(ctx)

	info, err := os.Stat(sess.outputPath)
	if err != nil {
		return fmt.Errorf("finished session file missing: %w", err)
	}

	cr.mu.Lock()
	endTime := sess.endTime
	cr.mu.Unlock()

	rec := store.Recording{
		ID:        sess.id,
		Path:      sess.outputPath,
		Bucket:    sess.bucket,
		SizeBytes: info.Size(),
		StartedAt: sess.startTime,
		EndedAt:   endTime,
	}
	if err := cr.catalog.Put(ctx, rec); err != nil {
		return err
	}
	log.Info("session finalized", "id", sess.id, "bucket", sess.bucket, "size", info.Size())
	return nil
}

// captureArgs generates the capture binary's command line arguments.
func captureArgs(params CaptureParams, outputPath string) []string {
	args := []string{
		"--sensor", strconv.Itoa(*params.SensorID),
		"--rate", strconv.Itoa(*params.SampleHz),
		"--max-size-mb", strconv.Itoa(*params.MaxSizeInMB),
	}
	if params.MaxDurationInSeconds != nil {
		args = append(args, "--max-duration", strconv.Itoa(*params.MaxDurationInSeconds))
	}
	return append(args, "--output", outputPath)
}

// waitForCommand should be run in the background to wait for the capture
// process to complete and update the session state accordingly.
func (cr *CaptureRecorder) waitForCommand(ctx context.Context, sess *captureSession) {
	log := logger.FromContext(ctx)

	err := sess.cmd.Wait()

	cr.mu.Lock()
	defer cr.mu.Unlock()
	sess.captureErr = err
	sess.exitCode = sess.cmd.ProcessState.ExitCode()
	sess.endTime = time.Now()
	close(sess.exited)

	if err != nil {
		log.Info("capture process completed with error", "err", err, "exitCode", sess.exitCode)
	} else {
		log.Info("capture process completed successfully", "exitCode", sess.exitCode)
	}
}

type shutdownPhase struct {
	name    string
	signals []unix.Signal
	timeout time.Duration
	desc    string
}

func (sess *captureSession) shutdownInPhases(ctx context.Context, phases []shutdownPhase) error {
	log := logger.FromContext(ctx)

	if sess.cmd == nil || sess.cmd.Process == nil {
		return fmt.Errorf("no capture process to stop")
	}

	pgid := -sess.cmd.Process.Pid // negative PGID targets the whole group
	for _, phase := range phases {
		phaseStartTime := time.Now()
		// short circuit: the process exited before this phase started.
		select {
		case <-sess.exited:
			return nil
		default:
		}

		log.Info("capture shutdown phase", "phase", phase.name, "desc", phase.desc)

		// Send the phase's signals in order.
		for idx, sig := range phase.signals {
			_ = unix.Kill(pgid, sig) // ignore error; process may have gone away
			// arbitrary delay between signals, but not after the last signal
			if idx < len(phase.signals)-1 {
				time.Sleep(100 * time.Millisecond)
			}
		}

		// Wait for exit or timeout
		if err := waitForChan(ctx, phase.timeout-time.Since(phaseStartTime), sess.exited); err == nil {
			log.Info("capture shutdown successful", "phase", phase.name)
			return nil
		}
	}

	return fmt.Errorf("failed to shutdown capture process")
}

// waitForChan returns nil if and only if the channel is closed
func waitForChan(ctx context.Context, timeout time.Duration, c <-chan struct{}) error {
	select {
	case <-c:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("process did not exit within %v timeout", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
