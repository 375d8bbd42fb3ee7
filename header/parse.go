package header

import (
	"errors"
	"fmt"

	"github.com/linht/uwb-manager/fastcmd"
)

var (
	ErrEmptyHeader = errors.New("empty transaction header")
	ErrShortHeader = errors.New("two-byte header truncated")
)

// Kind classifies a decoded header.
type Kind uint8

const (
	KindFastCommand Kind = iota
	KindShort
	KindFull
	KindMasked
)

func (k Kind) String() string {
	switch k {
	case KindFastCommand:
		return "fast-command"
	case KindShort:
		return "short"
	case KindFull:
		return "full"
	case KindMasked:
		return "masked"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// ParseKind accepts the names returned by Kind.String.
func ParseKind(s string) (Kind, error) {
	for k := KindFastCommand; k <= KindMasked; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown header kind %q", s)
}

// Info is a decoded header. Only the fields relevant to Kind are set.
type Info struct {
	Kind    Kind
	Access  AccessMode
	Base    BaseAddress
	Sub     SubAddress
	Mode    MaskedWriteMode
	Command fastcmd.Command
}

// HeaderLen returns the number of header bytes for the kind.
func (i Info) HeaderLen() int {
	if i.Kind == KindFull || i.Kind == KindMasked {
		return 2
	}
	return 1
}

// Encode re-encodes the header.
func (i Info) Encode() []byte {
	switch i.Kind {
	case KindFastCommand:
		h := FastCommand(i.Command)
		return h[:]
	case KindShort:
		h := ShortAddressed(i.Base, i.Access)
		return h[:]
	case KindMasked:
		h := MaskedWrite(i.Base, i.Sub, i.Mode)
		return h[:]
	default:
		h := FullAddressed(i.Base, i.Sub, i.Access)
		return h[:]
	}
}

func (i Info) String() string {
	switch i.Kind {
	case KindFastCommand:
		return i.Command.String()
	case KindShort:
		return fmt.Sprintf("%s 0x%02X", i.Access, uint8(i.Base))
	case KindMasked:
		return fmt.Sprintf("masked %s 0x%02X:0x%02X", i.Mode, uint8(i.Base), uint8(i.Sub))
	default:
		return fmt.Sprintf("%s 0x%02X:0x%02X", i.Access, uint8(i.Base), uint8(i.Sub))
	}
}

// Parse decodes the header at the start of b. Trailing payload bytes are
// ignored.
func Parse(b []byte) (Info, error) {
	if len(b) == 0 {
		return Info{}, ErrEmptyHeader
	}
	b0 := b[0]
	info := Info{
		Access: AccessMode(b0 >> 7),
		Base:   BaseAddress((b0 >> 1) & 0x1F),
	}

	if b0&lengthMask == 0 {
		if b0&typeMask != 0 {
			return Info{Kind: KindFastCommand, Access: Write, Command: fastcmd.Command((b0 >> 1) & 0x1F)}, nil
		}
		info.Kind = KindShort
		return info, nil
	}

	if len(b) < 2 {
		return Info{}, ErrShortHeader
	}
	info.Sub = SubAddress((b0&typeMask)<<6 | b[1]>>2)
	info.Mode = MaskedWriteMode(b[1] & modeMask)
	info.Kind = KindFull
	if info.Mode != Unmasked {
		info.Kind = KindMasked
	}
	return info, nil
}
