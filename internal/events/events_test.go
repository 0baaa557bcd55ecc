package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/brianlane/bizblasts-sub006/internal/domain"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, e domain.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

func event(t domain.EventType) domain.Event {
	r := &domain.Reservation{ID: uuid.New(), ResourceID: uuid.New(), BusinessID: uuid.New()}
	return domain.NewEvent(t, r, nil, time.Now())
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	pub := new(MockPublisher)
	e1, e2 := event(domain.EventReservationConfirmed), event(domain.EventRentalReturned)
	pub.On("Publish", mock.Anything, e1).Return(nil).Once()
	pub.On("Publish", mock.Anything, e2).Return(errors.New("broker down")).Once()

	d := NewDispatcher(pub, 8)
	d.Emit(e1)
	d.Emit(e2)
	require.NoError(t, d.Close(context.Background()))

	pub.AssertExpectations(t)
}

func TestDispatcher_EmitAfterCloseIsDropped(t *testing.T) {
	pub := new(MockPublisher)
	d := NewDispatcher(pub, 1)
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	d.Emit(event(domain.EventReservationCancelled))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

type blockingPublisher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu   sync.Mutex
	seen []domain.Event
}

func (p *blockingPublisher) Publish(ctx context.Context, e domain.Event) error {
	p.once.Do(func() { close(p.started) })
	<-p.release
	p.mu.Lock()
	p.seen = append(p.seen, e)
	p.mu.Unlock()
	return nil
}

func (p *blockingPublisher) Close() error { return nil }

func TestDispatcher_FullQueueDrops(t *testing.T) {
	pub := &blockingPublisher{started: make(chan struct{}), release: make(chan struct{})}
	d := NewDispatcher(pub, 1)

	e1, e2, e3 := event(domain.EventRentalCheckedOut), event(domain.EventRentalReturned), event(domain.EventRentalCompleted)
	d.Emit(e1)
	<-pub.started
	d.Emit(e2)
	d.Emit(e3)

	close(pub.release)
	require.NoError(t, d.Close(context.Background()))

	assert.Equal(t, []domain.Event{e1, e2}, pub.seen)
}

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return c.err
}

func (c *fakeChannel) Close() error { return nil }

func TestRabbitMQPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := &RabbitMQPublisher{channel: ch, exchange: DefaultExchange}
	old := domain.Interval{Start: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC), End: time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)}
	r := &domain.Reservation{ID: uuid.New(), ResourceID: uuid.New(), Interval: old.Pad(time.Hour)}
	e := domain.NewEvent(domain.EventReservationRescheduled, r, &old, time.Now())

	require.NoError(t, p.Publish(context.Background(), e))
	assert.Equal(t, "reservations", ch.exchange)
	assert.Equal(t, "reservation.rescheduled", ch.key)
	assert.Equal(t, "application/json", ch.msg.ContentType)
	assert.Equal(t, e.ID.String(), ch.msg.MessageId)

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(ch.msg.Body, &decoded))
	assert.Equal(t, r.ID, decoded.ReservationID)
	require.NotNil(t, decoded.OldInterval)
	assert.True(t, decoded.OldInterval.Start.Equal(old.Start))

	t.Run("Broker error is returned", func(t *testing.T) {
		ch.err = errors.New("channel closed")
		assert.Error(t, p.Publish(context.Background(), e))
	})
}
