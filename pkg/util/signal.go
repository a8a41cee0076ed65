package util

import "sync"

// SignalHandler 信号回调，sender 为触发对象
type SignalHandler func(sender any, params ...any)

// Signals 进程内的简单信号分发
type Signals struct {
	mu       sync.RWMutex
	handlers map[string][]SignalHandler
}

var defaultSignals = NewSignals()

func NewSignals() *Signals {
	return &Signals{handlers: make(map[string][]SignalHandler)}
}

// Sig 返回全局信号分发器
func Sig() *Signals { return defaultSignals }

func (s *Signals) Connect(name string, h SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = append(s.handlers[name], h)
}

// Emit 同步调用所有已注册的回调
func (s *Signals) Emit(name string, sender any, params ...any) {
	s.mu.RLock()
	hs := append([]SignalHandler(nil), s.handlers[name]...)
	s.mu.RUnlock()
	for _, h := range hs {
		h(sender, params...)
	}
}

// Clear 移除某个信号的全部回调
func (s *Signals) Clear(name string) {
	s.mu.Lock()
	delete(s.handlers, name)
	s.mu.Unlock()
}
