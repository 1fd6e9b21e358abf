package chat

import "fmt"

// State 生成状态
type State string

const (
	StateInit                      State = "INIT"
	StateCreditChecked             State = "CREDIT_CHECKED"
	StateModelReady                State = "MODEL_READY"
	StateMessagePlaceholderCreated State = "MESSAGE_PLACEHOLDER_CREATED"
	StateStreaming                 State = "STREAMING"
	StateCancelled                 State = "CANCELLED"
	StateErrored                   State = "ERRORED"
	StateCompleted                 State = "COMPLETED"
)

// IsTerminal 终态
func (s State) IsTerminal() bool {
	return s == StateCancelled || s == StateErrored || s == StateCompleted
}

// 非终态均可转入 ERRORED；MODEL_READY 直接完成用于非流式生成
var transitions = map[State][]State{
	StateInit:                      {StateCreditChecked},
	StateCreditChecked:             {StateModelReady},
	StateModelReady:                {StateMessagePlaceholderCreated, StateCompleted, StateCancelled},
	StateMessagePlaceholderCreated: {StateStreaming, StateCancelled},
	StateStreaming:                 {StateCancelled, StateCompleted},
}

// stateMachine 记录一次生成经过的状态
type stateMachine struct {
	current State
	history []State
}

func newStateMachine() *stateMachine {
	return &stateMachine{current: StateInit, history: []State{StateInit}}
}

// to 非法迁移返回错误，不修改状态
func (m *stateMachine) to(next State) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("generation already finished in state %s", m.current)
	}
	if next != StateErrored && !allowed(m.current, next) {
		return fmt.Errorf("invalid generation state transition %s -> %s", m.current, next)
	}
	m.current = next
	m.history = append(m.history, next)
	return nil
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
