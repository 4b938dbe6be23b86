package processor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

const (
	Reload   = "reload"
	Shutdown = "shutdown"
)

type operation struct {
	name string
	call func() error
}

type Processor struct {
	ForceShutdownTimeout time.Duration // force shudown timeout
	rChan                chan os.Signal
	shutOps              []operation
	reloadOps            []operation
	wg                   sync.WaitGroup
	log                  *zap.SugaredLogger
	ctx                  context.Context
	stop                 context.CancelFunc
	shutOnce             sync.Once
	exit                 func(int)
}

// New - creates new processor
func New(timeout time.Duration, log *zap.SugaredLogger) *Processor {
	ctx, stop := context.WithCancel(context.Background())
	return &Processor{
		ForceShutdownTimeout: timeout,
		rChan:                make(chan os.Signal, 1),
		log:                  log,
		ctx:                  ctx,
		stop:                 stop,
		exit:                 os.Exit,
	}
}

// Run assign proper signals and starts processing
func (p *Processor) Run() error {
	p.spinup()
	return nil
}

// Stop starts the shutdown sequence as SIGTERM would.
func (p *Processor) Stop() {
	p.stop()
}

// spinup - assigns signals to proper process... calls
func (p *Processor) spinup() {
	ctx, stop := signal.NotifyContext(p.ctx, syscall.SIGINT, syscall.SIGTERM)
	signal.Notify(p.rChan, syscall.SIGHUP)
	ctxReload, cancel := context.WithCancel(context.Background())
	p.wg.Add(2)
	go p.processReloadSignal(ctxReload, stop)
	go p.processStopSignal(ctx, cancel)
}

// processReloadSignal reload all operations assigned to Reload
func (p *Processor) processReloadSignal(ctx context.Context, cancel context.CancelFunc) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.log.Infof("shutdown reload")
			cancel() // release signal notification of processStopSignal
			signal.Stop(p.rChan)
			return
		case <-p.rChan:
			p.callConcurrent(p.reloadOps, Reload)
		}
	}
}

// processStopSignal execute Stop and force exit  after ForceShutdownTimeout timeout passes
func (p *Processor) processStopSignal(ctx context.Context, cancel context.CancelFunc) {
	defer p.wg.Done()
	<-ctx.Done()
	tF := time.AfterFunc(p.ForceShutdownTimeout, func() {
		p.log.Warnf("timeout %d ms has been elapsed, force exit", p.ForceShutdownTimeout.Milliseconds())
		p.exit(1)
	})
	defer tF.Stop()
	p.Shutdown()
	cancel() // cancel processReloadSignal
}

// callConcurrent runs every operation at once
func (p *Processor) callConcurrent(oper []operation, process string) {
	var wg sync.WaitGroup

	for _, op := range oper {
		wg.Add(1)
		op := op
		go func() {
			defer wg.Done()
			p.call(op, process)
		}()
	}
	wg.Wait()
	p.log.Infof("%s sequence completed", process)
}

// callInOrder runs operations one by one in registration order; a failed
// step does not stop the sequence
func (p *Processor) callInOrder(oper []operation, process string) {
	for _, op := range oper {
		p.call(op, process)
	}
	p.log.Infof("%s sequence completed", process)
}

func (p *Processor) call(op operation, process string) {
	if err := op.call(); err != nil {
		p.log.Warnf("%s %s: failed (%s)", process, op.name, err.Error())
		return
	}
	p.log.Infof("%s %s: succeeded", process, op.name)
}

// Register register shutdown and reload operation
func (p *Processor) Register(process, operationName string, operationFunction func() error) error {
	switch process {
	case Shutdown:
		p.shutOps = append(p.shutOps, operation{operationName, operationFunction})
	case Reload:
		p.reloadOps = append(p.reloadOps, operation{operationName, operationFunction})
	default:
		return fmt.Errorf("%s process unknown", process)
	}
	return nil
}

// Shutdown - runs all shutdown operations once, in registration order
func (p *Processor) Shutdown() {
	p.shutOnce.Do(func() {
		p.callInOrder(p.shutOps, Shutdown)
	})
}

func (p *Processor) Wait() {
	p.wg.Wait()
}
