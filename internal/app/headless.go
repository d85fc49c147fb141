package app

import (
	"context"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/persona"
	"DealPilot/internal/task"
)

// RunHeadless 在进程内以内存登记表执行单个任务，不经过队列与 API。
// onEvent 按发布顺序收到该任务的全部事件。
func RunHeadless(ctx context.Context, engine *Engine, personaName string, params map[string]any, onEvent func(task.Event)) (*task.Task, error) {
	if engine == nil || engine.Dispatcher == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "engine is not initialised")
	}
	if !engine.Dispatcher.Supports(personaName) {
		return nil, xerrors.New(xerrors.CodeUnsupportedPersona, "unsupported persona: "+personaName)
	}

	svc := task.NewService(task.NewMemoryStore(), nil, 1)
	defer svc.Close()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := svc.Subscribe(subCtx)
	if err != nil {
		return nil, err
	}
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for ev := range events {
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}()

	id, err := svc.CreateTask(ctx, personaName, params)
	if err != nil {
		return nil, err
	}
	opts := []task.ProcessorOption{task.WithRecoveryHandler(persona.NoDealRecovery())}
	if engine.Metrics != nil {
		opts = append(opts, task.WithJobObserver(engine.Metrics))
	}
	processor := task.NewProcessor(engine.Dispatcher, svc, nil, nil, opts...)
	handleErr := processor.Handle(ctx, id)

	result, err := svc.Get(context.WithoutCancel(ctx), id)
	cancel()
	<-drained
	if err != nil {
		return nil, err
	}
	return result, handleErr
}
