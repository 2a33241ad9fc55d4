package logx

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"sync"
)

// CrashInfo describes a fatal failure.
type CrashInfo struct {
	Condition string
	Message   string
	Stack     string
}

func (c CrashInfo) String() string {
	return fmt.Sprintf("\n==== OTTER CRASH REPORT ====\nCondition: %s\nMessage:   %s\n%s============================\n",
		c.Condition, c.Message, c.Stack)
}

// Reporter records the first crash and notifies listeners. Later reports
// are dropped so a failing teardown cannot bury the original cause.
type Reporter struct {
	Out io.Writer

	mu        sync.Mutex
	crashed   bool
	info      CrashInfo
	listeners []func(CrashInfo)
}

func NewReporter() *Reporter {
	return &Reporter{Out: os.Stderr}
}

func (r *Reporter) OnCrash(fn func(CrashInfo)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Report returns false when a crash was already reported.
func (r *Reporter) Report(info CrashInfo) bool {
	r.mu.Lock()
	if r.crashed {
		r.mu.Unlock()
		return false
	}
	r.crashed = true
	r.info = info
	listeners := append(([]func(CrashInfo))(nil), r.listeners...)
	r.mu.Unlock()

	Core().Error("crash", "condition", info.Condition, "message", info.Message)
	if r.Out != nil {
		fmt.Fprint(r.Out, info.String())
	}
	for _, fn := range listeners {
		fn(info)
	}
	return true
}

func (r *Reporter) Crashed() (CrashInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info, r.crashed
}

// Recover turns a panic into a crash report and an error. Use it deferred:
//
//	defer rep.Recover(&err)
func (r *Reporter) Recover(errp *error) {
	v := recover()
	if v == nil {
		return
	}
	info := CrashInfo{
		Condition: "panic",
		Message:   fmt.Sprint(v),
		Stack:     string(debug.Stack()),
	}
	r.Report(info)
	if errp != nil {
		*errp = fmt.Errorf("panic: %v", v)
	}
}
