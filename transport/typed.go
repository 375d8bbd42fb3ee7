package transport

import (
	"context"

	"github.com/linht/uwb-manager/reg"
)

// Read fetches the whole of register R into a fresh view.
func Read[R reg.Def](ctx context.Context, b *Bus) (*reg.View[R], error) {
	v := reg.NewView[R]()
	if err := b.ReadRaw(ctx, v.Register(), v.Bytes()); err != nil {
		return nil, err
	}
	return v, nil
}

// Write sends the whole view to register R.
func Write[R reg.Def](ctx context.Context, b *Bus, v *reg.View[R]) error {
	return b.WriteRaw(ctx, v.Register(), v.Bytes())
}

// Modify reads register R, applies fn and writes the result back. No other
// transaction can run between the read and the write.
func Modify[R reg.Def](ctx context.Context, b *Bus, fn func(*reg.View[R])) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := reg.NewView[R]()
	r := v.Register()
	if err := b.readLocked(ctx, r, v.Bytes()); err != nil {
		return err
	}
	fn(v)
	return b.writeLocked(ctx, r, v.Bytes())
}
