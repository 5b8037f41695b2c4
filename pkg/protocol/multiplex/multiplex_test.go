package multiplex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossia-go/paramtree/pkg/model"
	"github.com/ossia-go/paramtree/pkg/value"
)

// member is a protocol that records traffic and can inject inbound values.
type member struct {
	name string

	mu        sync.Mutex
	host      model.Host
	pushed    []string
	refreshed int
	closed    bool
	attachErr error
}

func (p *member) Kind() model.ProtocolKind { return model.ProtocolOSC }

func (p *member) Attach(h model.Host) error {
	if p.attachErr != nil {
		return p.attachErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.host = h
	return nil
}

func (p *member) Push(param *model.Parameter, v value.Value, _ *model.Pass) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, param.Address()+"="+v.String())
	return nil
}

func (p *member) UpdateNamespace(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshed++
	return nil
}

func (p *member) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *member) receive(addr string, v value.Value) error {
	return p.host.Inbound(p, addr, v)
}

func (p *member) got() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.pushed...)
}

func setup(t *testing.T, m *Multiplex) (*model.Device, *model.Parameter) {
	t.Helper()
	dev, err := model.NewDevice("D", m)
	require.NoError(t, err)
	t.Cleanup(func() { dev.Close() })
	n, err := dev.Root().CreateChild("/x")
	require.NoError(t, err)
	p, err := n.CreateParameter(value.TypeInt)
	require.NoError(t, err)
	return dev, p
}

func TestMembership(t *testing.T) {
	a, b, c := &member{name: "a"}, &member{name: "b"}, &member{name: "c"}
	m := New(a, b, a)
	assert.Equal(t, []model.Protocol{a, b}, m.Members())
	assert.True(t, m.Contains(a))
	assert.False(t, m.Contains(c))

	assert.ErrorIs(t, m.AddMember(a), model.ErrDuplicateName)
	assert.ErrorIs(t, m.AddMember(m), model.ErrUnsupported)
	assert.ErrorIs(t, m.Expose(a, c), model.ErrNotFound)
	assert.ErrorIs(t, m.Expose(a, a), model.ErrUnsupported)

	require.NoError(t, m.Expose(a, b))
	require.NoError(t, m.Expose(a, b))
	assert.Equal(t, []Edge{{Source: a, Target: b}}, m.Edges())
	assert.Equal(t, model.ProtocolMultiplex, m.Kind())
}

func TestLocalPushReachesAllMembers(t *testing.T) {
	a, b := &member{name: "a"}, &member{name: "b"}
	_, p := setup(t, New(a, b))

	require.NoError(t, p.Push(value.Int(1)))
	assert.Equal(t, []string{"/x=1"}, a.got())
	assert.Equal(t, []string{"/x=1"}, b.got())
}

func TestInboundFollowsExposure(t *testing.T) {
	a, b, c := &member{name: "a"}, &member{name: "b"}, &member{name: "c"}
	m := New(a, b, c)
	require.NoError(t, m.Expose(a, b))
	_, p := setup(t, m)

	require.NoError(t, a.receive("/x", value.Int(2)))
	v, _ := p.ToInt()
	assert.Equal(t, int32(2), v)
	assert.Empty(t, a.got(), "origin must not receive its own value")
	assert.Equal(t, []string{"/x=2"}, b.got())
	assert.Empty(t, c.got(), "c is not exposed to a")

	require.NoError(t, c.receive("/x", value.Int(3)))
	assert.Empty(t, a.got())
	assert.Equal(t, []string{"/x=2"}, b.got())
}

func TestCyclicExposure(t *testing.T) {
	a, b := &member{name: "a"}, &member{name: "b"}
	m := New(a, b)
	require.NoError(t, m.Expose(a, b))
	require.NoError(t, m.Expose(b, a))
	_, _ = setup(t, m)

	require.NoError(t, a.receive("/x", value.Int(4)))
	require.NoError(t, b.receive("/x", value.Int(5)))

	assert.Equal(t, []string{"/x=4"}, b.got())
	assert.Equal(t, []string{"/x=5"}, a.got())
}

func TestNestedMultiplex(t *testing.T) {
	a, b, c := &member{name: "a"}, &member{name: "b"}, &member{name: "c"}
	inner := New(b, c)
	outer := New(a, inner)
	require.NoError(t, outer.Expose(a, inner))
	_, _ = setup(t, outer)

	require.NoError(t, a.receive("/x", value.Int(6)))
	assert.Equal(t, []string{"/x=6"}, b.got())
	assert.Equal(t, []string{"/x=6"}, c.got())

	// b is not exposed to anything inside inner.
	require.NoError(t, b.receive("/x", value.Int(7)))
	assert.Equal(t, []string{"/x=7"}, a.got())
	assert.Equal(t, []string{"/x=6"}, c.got())
}

func TestAttachFailureClosesMembers(t *testing.T) {
	a := &member{name: "a"}
	bad := &member{name: "bad", attachErr: errors.New("bind failed")}
	_, err := model.NewDevice("D", New(a, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")
	assert.True(t, a.closed)
}

func TestLateMemberAndLifecycle(t *testing.T) {
	a, b := &member{name: "a"}, &member{name: "b"}
	m := New(a)
	dev, p := setup(t, m)

	require.NoError(t, m.AddMember(b))
	require.NotNil(t, b.host)
	require.NoError(t, p.Push(value.Int(8)))
	assert.Equal(t, []string{"/x=8"}, b.got())

	require.NoError(t, dev.SyncNamespace(context.Background()))
	assert.Equal(t, 1, a.refreshed)
	assert.Equal(t, 1, b.refreshed)

	require.NoError(t, dev.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.ErrorIs(t, m.AddMember(&member{}), model.ErrUnsupported)
}
