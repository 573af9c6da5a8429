package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type ContainerState string

const (
	ContainerInProgress ContainerState = "IN_PROGRESS"
	ContainerFinished   ContainerState = "FINISHED"
	ContainerError      ContainerState = "ERROR"
	// ContainerTimedOut is never reported by the platform; the poller enters it
	// when the attempt budget runs out.
	ContainerTimedOut ContainerState = "TIMED_OUT"
)

// ContainerStatus is the result of one status poll.
type ContainerStatus struct {
	State  ContainerState
	Detail string
}

// ParseContainerState maps a Graph status_code onto a poller state. Unknown
// codes are treated as still processing so the attempt budget bounds them.
func ParseContainerState(code string) ContainerState {
	switch code {
	case "FINISHED", "PUBLISHED":
		return ContainerFinished
	case "ERROR", "EXPIRED":
		return ContainerError
	default:
		return ContainerInProgress
	}
}

// nextPollStep is the poll state machine: reported is what the latest poll
// returned and polls is how many polls have been made so far.
func nextPollStep(reported ContainerState, polls, maxAttempts int) ContainerState {
	switch reported {
	case ContainerFinished, ContainerError:
		return reported
	}
	if polls >= maxAttempts {
		return ContainerTimedOut
	}
	return ContainerInProgress
}

type StatusPoller struct {
	ig          InstagramService
	interval    time.Duration
	maxAttempts int
	sleep       Sleeper
	logger      *zap.Logger
}

func NewStatusPoller(ig InstagramService, interval time.Duration, maxAttempts int, logger *zap.Logger) *StatusPoller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &StatusPoller{
		ig:          ig,
		interval:    interval,
		maxAttempts: maxAttempts,
		sleep:       sleepContext,
		logger:      logger,
	}
}

// ceiling bounds the whole wait. It is one interval longer than the poll budget
// (interval * maxAttempts) to leave slack for the status calls themselves.
func (p *StatusPoller) ceiling() time.Duration {
	return p.interval * time.Duration(p.maxAttempts+1)
}

// WaitUntilReady polls the container every interval until it reports FINISHED or
// ERROR, or the attempt budget is spent. It returns ErrPublishTimeout on an
// exhausted budget and a *RemoteProcessingError when the platform reports failure.
func (p *StatusPoller) WaitUntilReady(ctx context.Context, containerID, accessToken string) (ContainerState, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.ceiling())
	defer cancel()

	state := ContainerInProgress
	var (
		polls  int
		status ContainerStatus
	)
	for state == ContainerInProgress {
		if err := p.sleep(waitCtx, p.interval); err != nil {
			return p.interrupted(ctx, containerID, polls, err)
		}

		var err error
		status, err = p.ig.ContainerStatus(waitCtx, containerID, accessToken)
		polls++
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return p.interrupted(ctx, containerID, polls, err)
			}
			return ContainerInProgress, fmt.Errorf("poll container %s: %w", containerID, err)
		}

		state = nextPollStep(status.State, polls, p.maxAttempts)
		p.logger.Debug("Container status polled",
			zap.String("container_id", containerID),
			zap.String("state", string(status.State)),
			zap.Int("poll", polls))
	}

	switch state {
	case ContainerError:
		return state, &RemoteProcessingError{ContainerID: containerID, Status: status.Detail, Polls: polls}
	case ContainerTimedOut:
		return state, fmt.Errorf("container %s still in progress after %d polls: %w", containerID, polls, ErrPublishTimeout)
	}
	return state, nil
}

// interrupted distinguishes the poll ceiling firing from the caller going away.
func (p *StatusPoller) interrupted(ctx context.Context, containerID string, polls int, err error) (ContainerState, error) {
	if ctx.Err() != nil {
		return ContainerInProgress, ctx.Err()
	}
	return ContainerTimedOut, fmt.Errorf("container %s hit the %s wait ceiling after %d polls: %w",
		containerID, p.ceiling(), polls, ErrPublishTimeout)
}
