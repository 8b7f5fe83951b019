package scanner

import (
	"net"
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockRelayOpener is a hand-written mock for RelayOpener in the style of
// mockgen's generated output, used to assert relay-spawn behavior
// without starting real sockets.
type MockRelayOpener struct {
	ctrl     *gomock.Controller
	recorder *MockRelayOpenerMockRecorder
}

type MockRelayOpenerMockRecorder struct {
	mock *MockRelayOpener
}

func NewMockRelayOpener(ctrl *gomock.Controller) *MockRelayOpener {
	mock := &MockRelayOpener{ctrl: ctrl}
	mock.recorder = &MockRelayOpenerMockRecorder{mock}
	return mock
}

func (m *MockRelayOpener) EXPECT() *MockRelayOpenerMockRecorder {
	return m.recorder
}

func (m *MockRelayOpener) OpenRelay(upstream *net.UDPAddr) (*net.UDPAddr, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "OpenRelay", upstream)
	ret0, _ := ret[0].(*net.UDPAddr)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockRelayOpenerMockRecorder) OpenRelay(upstream interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "OpenRelay", reflect.TypeOf((*MockRelayOpener)(nil).OpenRelay), upstream)
}
