package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/layover/internal/backend"
)

// memStore is an in-memory RecordStore. Errors can be injected per table,
// and onSelect runs before a select on a table is answered.
type memStore struct {
	mu        sync.Mutex
	tables    map[string][]backend.Row
	selectErr map[string]error
	insertErr map[string]error
	updateErr map[string]error
	onSelect  map[string]func()
	updates   int
	next      int
}

func newMemStore() *memStore {
	return &memStore{
		tables:    make(map[string][]backend.Row),
		selectErr: make(map[string]error),
		insertErr: make(map[string]error),
		updateErr: make(map[string]error),
		onSelect:  make(map[string]func()),
	}
}

func (s *memStore) put(table string, rows ...backend.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], r.Clone())
	}
}

func (s *memStore) rows(table string) []backend.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tables[table])
}

func (s *memStore) Select(_ context.Context, table string, q backend.Query) ([]backend.Row, error) {
	s.mu.Lock()
	hook := s.onSelect[table]
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.selectErr[table]; err != nil {
		return nil, err
	}
	var out []backend.Row
	for _, r := range s.tables[table] {
		if q.Match(r) {
			out = append(out, r.Clone())
		}
	}
	for i := len(q.Order) - 1; i >= 0; i-- {
		o := q.Order[i]
		slices.SortStableFunc(out, func(a, b backend.Row) int {
			c := compare(a[o.Column], b[o.Column])
			if o.Desc {
				return -c
			}
			return c
		})
	}
	if q.Offset > 0 {
		out = out[min(q.Offset, len(out)):]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *memStore) Insert(_ context.Context, table string, rec backend.Row) (backend.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertErr[table]; err != nil {
		return nil, err
	}
	rec = rec.Clone()
	if !rec.Has("id") {
		s.next++
		rec["id"] = fmt.Sprintf("%s-%d", table, s.next)
	}
	s.tables[table] = append(s.tables[table], rec)
	return rec.Clone(), nil
}

func (s *memStore) Update(_ context.Context, table string, q backend.Query, patch backend.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if err := s.updateErr[table]; err != nil {
		return err
	}
	for _, r := range s.tables[table] {
		if q.Match(r) {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
	return nil
}

func (s *memStore) Delete(_ context.Context, table string, q backend.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = slices.DeleteFunc(s.tables[table], q.Match)
	return nil
}

func compare(a, b any) int {
	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if aok && bok {
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	}
	return cmpString(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// fakeChanges delivers emitted events synchronously to open subscriptions.
type fakeChanges struct {
	mu   sync.Mutex
	subs []*fakeSub
}

type fakeSub struct {
	topic   string
	matcher backend.Matcher
	fn      func(backend.ChangeEvent)
	unsubs  int
}

func (s *fakeSub) Topic() string { return s.topic }

func (s *fakeSub) Unsubscribe() error {
	s.unsubs++
	return nil
}

func (f *fakeChanges) SubscribeChanges(topic string, m backend.Matcher, fn func(backend.ChangeEvent)) (backend.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sub := &fakeSub{topic: topic, matcher: m, fn: fn}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeChanges) emit(evt backend.ChangeEvent) {
	f.mu.Lock()
	subs := slices.Clone(f.subs)
	f.mu.Unlock()
	for _, s := range subs {
		if s.unsubs == 0 && s.matcher.Matches(evt) {
			s.fn(evt)
		}
	}
}

type notifCall struct {
	userID, conversationID string
}

type fakeNotifications struct {
	mu    sync.Mutex
	calls []notifCall
}

func (f *fakeNotifications) DeleteByConversation(_ context.Context, userID, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifCall{userID, conversationID})
	return nil
}

func (f *fakeNotifications) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStorage struct {
	uploaded map[string][]byte
	removed  []string
}

func (f *fakeStorage) Upload(_ context.Context, bucket, path string, data []byte, _ string) (string, error) {
	if f.uploaded == nil {
		f.uploaded = make(map[string][]byte)
	}
	f.uploaded[bucket+"/"+path] = data
	return f.PublicURL(bucket, path), nil
}

func (f *fakeStorage) PublicURL(bucket, path string) string {
	return "https://cdn.example.com/" + bucket + "/" + path
}

func (f *fakeStorage) Remove(_ context.Context, bucket, path string) error {
	f.removed = append(f.removed, bucket+"/"+path)
	return nil
}

func msgRow(id, conv, sender, receiver, text string, ts int64) backend.Row {
	return backend.Row{
		"id": id, "connection_id": conv, "sender_id": sender, "receiver_id": receiver,
		"text": text, "type": "text", "read": false, "edited": false, "timestamp": ts,
	}
}

func ids(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
