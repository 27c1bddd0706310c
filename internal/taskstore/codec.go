package taskstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rjalexa/taskbroker/internal/domain"
)

const timeLayout = time.RFC3339Nano

func decodeTask(fields map[string]string) (*domain.Task, error) {
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	t := &domain.Task{
		ID:         fields["task_id"],
		Type:       fields["task_type"],
		Payload:    fields["payload"],
		State:      domain.State(fields["state"]),
		LastError:  fields["last_error"],
		ErrorType:  domain.ErrorClass(fields["error_type"]),
		Result:     fields["result"],
	}

	var err error
	if t.RetryCount, err = atoiOrZero(fields["retry_count"]); err != nil {
		return nil, fmt.Errorf("decode retry_count: %w", err)
	}
	if t.MaxRetries, err = atoiOrZero(fields["max_retries"]); err != nil {
		return nil, fmt.Errorf("decode max_retries: %w", err)
	}

	if t.CreatedAt, err = parseTimeOrZero(fields["created_at"]); err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	if t.UpdatedAt, err = parseTimeOrZero(fields["updated_at"]); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	if t.CompletedAt, err = parseTimePtr(fields["completed_at"]); err != nil {
		return nil, fmt.Errorf("decode completed_at: %w", err)
	}
	if t.RetryAfter, err = parseTimePtr(fields["retry_after"]); err != nil {
		return nil, fmt.Errorf("decode retry_after: %w", err)
	}

	if raw := fields["state_history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.StateHistory); err != nil {
			return nil, fmt.Errorf("decode state_history: %w", err)
		}
	}
	if raw := fields["error_history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &t.ErrorHistory); err != nil {
			return nil, fmt.Errorf("decode error_history: %w", err)
		}
	}

	return t, nil
}

func atoiOrZero(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseTimeOrZero(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeStateEvent(state domain.State, at time.Time) (string, error) {
	b, err := json.Marshal(domain.StateEvent{State: state, Timestamp: at})
	return string(b), err
}

func encodeErrorEvent(class domain.ErrorClass, message string, at time.Time) (string, error) {
	b, err := json.Marshal(domain.ErrorEvent{ErrorType: class, Message: message, Timestamp: at})
	return string(b), err
}
