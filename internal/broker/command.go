package broker

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/fyuneru/boxnet/logger"
)

// CommandEnvelope is the inbound wire shape on the command exchange, per
// spec §4.6 step 2.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	HWID    string          `json:"hw_id,omitempty"`
	Ts      int64           `json:"ts"`
}

// TaskKind is the sub-type a command envelope maps to.
type TaskKind int

const (
	TaskSync TaskKind = iota
	TaskReset
	TaskReboot
	TaskHeartbeat // pushed by internal/timers, never by an inbound command
)

// TaskItem is what the command dispatcher pushes onto the sync worker's
// internal task queue.
type TaskItem struct {
	Kind    TaskKind
	Payload json.RawMessage
}

var typeToKind = map[string]TaskKind{
	"sync":   TaskSync,
	"reset":  TaskReset,
	"reboot": TaskReboot,
}

// Dispatcher decodes raw AMQP deliveries into TaskItems per spec §4.6 and
// pushes them onto Tasks. A present, non-empty hw_id equal to this node's
// identity causes the envelope to be dropped — see DESIGN.md's Open
// Question #1 disposition.
type Dispatcher struct {
	selfHWID string
	log      *zap.SugaredLogger
	Tasks    chan TaskItem
}

// NewDispatcher builds a Dispatcher identifying itself as selfHWID.
func NewDispatcher(selfHWID string, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		selfHWID: selfHWID,
		log:      log.With(logger.FieldComponent, "command-dispatcher"),
		Tasks:    make(chan TaskItem, 64),
	}
}

// Handle is passed as the handle callback to Link.RunConsumer.
func (d *Dispatcher) Handle(body []byte) {
	var env CommandEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		d.log.Warnw("dropping malformed command envelope", "error", err)
		return
	}

	if env.HWID != "" && env.HWID == d.selfHWID {
		d.log.Debugw("dropping command targeted at self via hw_id filter", "hw_id", env.HWID)
		return
	}

	kind, ok := typeToKind[env.Type]
	if !ok {
		d.log.Warnw("dropping command with unknown type", "type", env.Type)
		return
	}

	d.Tasks <- TaskItem{Kind: kind, Payload: env.Payload}
}
