package flow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghost-cover/ghostcover-bot/internal/broadcast"
	"github.com/ghost-cover/ghostcover-bot/internal/coupon"
	"github.com/ghost-cover/ghostcover-bot/internal/domain"
	"github.com/ghost-cover/ghostcover-bot/internal/gateway"
	"github.com/ghost-cover/ghostcover-bot/internal/ledger"
	"github.com/ghost-cover/ghostcover-bot/internal/storage"
	"github.com/ghost-cover/ghostcover-bot/internal/store"
)

type fakeGateway struct {
	sent  []int64
	files map[string][]byte
}

func (f *fakeGateway) MembershipStatus(ctx context.Context, handle string, userID int64) (gateway.MemberStatus, error) {
	return gateway.StatusMember, nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, chatID int64, text string) error {
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeGateway) DeliverFile(ctx context.Context, chatID int64, data []byte, filename, caption string) (gateway.MessageRef, error) {
	return gateway.MessageRef{}, nil
}

func (f *fakeGateway) DeleteMessage(ctx context.Context, ref gateway.MessageRef) error { return nil }

func (f *fakeGateway) FetchFile(ctx context.Context, fileID string) ([]byte, error) {
	data, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T) (*Engine, *store.Manager, *fakeGateway) {
	t.Helper()

	log := testLogger()
	fs := storage.NewFileStorage(filepath.Join(t.TempDir(), "data.json"), log)
	st, err := store.NewManager(context.Background(), fs, 1, log)
	require.NoError(t, err)

	gw := &fakeGateway{files: make(map[string][]byte)}
	lg := ledger.New(time.UTC, log)
	reg := coupon.NewRegistry(lg, log)
	bc := broadcast.New(gw, st, time.Millisecond, log)

	return NewEngine(NewMemoryStorage(), st, lg, reg, bc, gw, log), st, gw
}

func TestEngine_BeginUnknownKind(t *testing.T) {
	e, _, _ := newEngine(t)

	_, err := e.Begin(context.Background(), 7, Kind("nonsense"))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEngine_AdvanceWithoutSession(t *testing.T) {
	e, _, _ := newEngine(t)

	_, err := e.Advance(context.Background(), 7, Input{Text: "hi"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEngine_BeginOverwritesActiveFlow(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 7, KindAddOwner)
	require.NoError(t, err)
	_, err = e.Begin(ctx, 7, KindCouponAmount)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 7, Input{Text: "500"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "GHOST-")
}

func TestEngine_CancelDiscardsPartialData(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 7, KindAddChannel)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 7, Input{Text: "@mychannel"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Status)

	res, err = e.Advance(ctx, 7, Input{Text: "/cancel"})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.False(t, e.Active(ctx, 7))

	st.View(func(doc *domain.Document) {
		assert.Empty(t, doc.Force.Channels)
	})
}

func TestEngine_CouponFlow(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 7, KindCouponAmount)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 7, Input{Text: "not a number"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.True(t, e.Active(ctx, 7), "rejected input keeps the flow alive")

	res, err = e.Advance(ctx, 7, Input{Text: "250"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	var code string
	st.View(func(doc *domain.Document) {
		require.Len(t, doc.Coupons, 1)
		for c := range doc.Coupons {
			code = c
		}
	})
	assert.Contains(t, res.Message, code)
}

func TestEngine_RedeemFlow(t *testing.T) {
	e, st, gw := newEngine(t)
	ctx := context.Background()

	var code string
	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		var err error
		code, _, err = coupon.NewRegistry(ledger.New(time.UTC, testLogger()), testLogger()).Generate(doc, 300)
		return err
	}))

	_, err := e.Begin(ctx, 42, KindRedeemCode)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 42, Input{Text: "GHOST-WRONGONE"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status, "unknown code allows a retry")

	res, err = e.Advance(ctx, 42, Input{Text: strings.ToLower(code)})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []int64{1}, gw.sent, "every owner hears about the redemption")

	st.View(func(doc *domain.Document) {
		assert.Equal(t, int64(300), doc.User(42).Balance)
	})

	// A second attempt on the same code ends the flow without crediting.
	_, err = e.Begin(ctx, 43, KindRedeemCode)
	require.NoError(t, err)
	res, err = e.Advance(ctx, 43, Input{Text: code})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "already been redeemed")
	assert.Len(t, gw.sent, 1, "a failed redemption is not announced")

	st.View(func(doc *domain.Document) {
		assert.Zero(t, doc.User(43).Balance)
	})
}

func TestEngine_AddOwnerFlow(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 1, KindAddOwner)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{Text: "999"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	st.View(func(doc *domain.Document) {
		assert.True(t, doc.IsOwner(999))
	})

	_, err = e.Begin(ctx, 1, KindAddOwner)
	require.NoError(t, err)
	res, err = e.Advance(ctx, 1, Input{Text: "999"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "already an owner")
}

func TestEngine_AddChannelFlow(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 1, KindAddChannel)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{Text: "just some words"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status, "free text is not a channel")

	res, err = e.Advance(ctx, 1, Input{Text: "https://t.me/somechannel"})
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Status)

	res, err = e.Advance(ctx, 1, Input{Text: strings.Repeat("x", 41)})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status, "label over the button cap is refused")

	res, err = e.Advance(ctx, 1, Input{Text: "Join us"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	st.View(func(doc *domain.Document) {
		require.Len(t, doc.Force.Channels, 1)
		assert.Equal(t, "https://t.me/somechannel", doc.Force.Channels[0].Invite)
		assert.Equal(t, "Join us", doc.Force.Channels[0].JoinBtnText)
	})
}

func TestEngine_AddChannelSkipsLabelOnDash(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 1, KindAddChannel)
	require.NoError(t, err)

	_, err = e.Advance(ctx, 1, Input{Text: "@mychannel"})
	require.NoError(t, err)
	res, err := e.Advance(ctx, 1, Input{Text: "-"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	st.View(func(doc *domain.Document) {
		require.Len(t, doc.Force.Channels, 1)
		assert.Empty(t, doc.Force.Channels[0].JoinBtnText)
	})
}

func TestEngine_EditBalanceFlow(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.User(55).Balance = 100
		return nil
	}))

	cases := []struct {
		name  string
		input string
		want  int64
	}{
		{"add", "+50", 150},
		{"deduct", "-30", 70},
		{"set exact", "=1234", 1234},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
				doc.User(55).Balance = 100
				return nil
			}))

			_, err := e.Begin(ctx, 1, KindEditBalance)
			require.NoError(t, err)
			res, err := e.Advance(ctx, 1, Input{Text: "55"})
			require.NoError(t, err)
			require.Equal(t, StatusPending, res.Status)

			res, err = e.Advance(ctx, 1, Input{Text: tc.input})
			require.NoError(t, err)
			require.Equal(t, StatusCompleted, res.Status)

			st.View(func(doc *domain.Document) {
				assert.Equal(t, tc.want, doc.User(55).Balance)
			})
		})
	}
}

func TestEngine_EditBalanceRejectsBadGrammar(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 1, KindEditBalance)
	require.NoError(t, err)
	_, err = e.Advance(ctx, 1, Input{Text: "55"})
	require.NoError(t, err)

	for _, bad := range []string{"", "500", "*5", "+abc"} {
		res, err := e.Advance(ctx, 1, Input{Text: bad})
		require.NoError(t, err)
		assert.Equal(t, StatusRejected, res.Status, "input %q", bad)
	}
}

func TestEngine_EditStakeFlow(t *testing.T) {
	e, st, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Begin(ctx, 1, KindEditStake)
	require.NoError(t, err)
	_, err = e.Advance(ctx, 1, Input{Text: "55"})
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{Text: "21"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)

	res, err = e.Advance(ctx, 1, Input{Text: "20"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)

	st.View(func(doc *domain.Document) {
		u := doc.User(55)
		assert.True(t, u.Stake.Completed)
		assert.False(t, u.Stake.Active)
		assert.Equal(t, 20, u.Stake.DaysCompleted)
	})
}

func TestEngine_ImportMergeFlow(t *testing.T) {
	e, st, gw := newEngine(t)
	ctx := context.Background()

	incoming := domain.NewDocument(0)
	incoming.Subscribers = []int64{100, 200}
	data, err := json.MarshalIndent(incoming, "", "  ")
	require.NoError(t, err)
	gw.files["backup-1"] = data

	_, err = e.Begin(ctx, 1, KindImportMerge)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{Text: "no file here"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)

	res, err = e.Advance(ctx, 1, Input{FileID: "backup-1", FileName: "backup.json"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "+2 subscribers")

	st.View(func(doc *domain.Document) {
		assert.True(t, doc.IsSubscriber(100))
		assert.True(t, doc.IsSubscriber(200))
	})
}

func TestEngine_ImportRejectsForeignFile(t *testing.T) {
	e, _, gw := newEngine(t)
	ctx := context.Background()

	gw.files["junk"] = []byte(`{"hello": "world"}`)

	_, err := e.Begin(ctx, 1, KindImportReplace)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{FileID: "junk"})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.True(t, e.Active(ctx, 1))
}

func TestEngine_BroadcastFlow(t *testing.T) {
	e, st, gw := newEngine(t)
	ctx := context.Background()

	require.NoError(t, st.Update(ctx, func(doc *domain.Document) error {
		doc.AddSubscriber(10)
		doc.AddSubscriber(20)
		return nil
	}))

	_, err := e.Begin(ctx, 1, KindBroadcast)
	require.NoError(t, err)

	res, err := e.Advance(ctx, 1, Input{Text: "hello everyone"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, res.Status)
	assert.Contains(t, res.Message, "2 sent")
	assert.Equal(t, []int64{10, 20}, gw.sent)
}
