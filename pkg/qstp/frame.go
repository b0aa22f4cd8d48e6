package qstp

import "encoding/binary"

var frameMagic = [4]byte{'Q', 'S', 'T', 'P'}

const frameVersion = 0x01

// ComputeNonce derives the per-frame nonce from a direction's 12-byte
// session prefix and the frame's sequence number: the prefix with its last
// 8 bytes XORed against seq, little-endian, per spec.md §6.
func ComputeNonce(prefix [12]byte, seq uint64) [12]byte {
	nonce := prefix
	var seqLE [8]byte
	binary.LittleEndian.PutUint64(seqLE[:], seq)
	for i := 0; i < 8; i++ {
		nonce[4+i] ^= seqLE[i]
	}
	return nonce
}

// computeAAD builds the AAD fed to AEAD.Seal/Open: magic || version ||
// tunnel_id || topic || epoch_le || seq_le || caller_aad, per spec.md §6.
func computeAAD(tunnelId [16]byte, topic string, epoch, seq uint64, callerAad []byte) []byte {
	out := make([]byte, 0, 4+1+16+len(topic)+8+8+len(callerAad))
	out = append(out, frameMagic[:]...)
	out = append(out, frameVersion)
	out = append(out, tunnelId[:]...)
	out = append(out, topic...)
	out = appendUint64(out, epoch)
	out = appendUint64(out, seq)
	out = append(out, callerAad...)
	return out
}

// MarshalFrame encodes frame per spec.md §6's bit-exact wire layout.
func MarshalFrame(frame Frame) ([]byte, error) {
	if len(frame.Topic) > 0xFFFF {
		return nil, newError(ErrInvalidInput, "topic too large to encode")
	}
	if len(frame.Sealed) < 16 {
		return nil, newError(ErrInvalidInput, "sealed payload shorter than AEAD tag")
	}
	ct := frame.Sealed[:len(frame.Sealed)-16]
	tag := frame.Sealed[len(frame.Sealed)-16:]
	if len(ct) > 0xFFFF_FFFF {
		return nil, newError(ErrInvalidInput, "ciphertext too large to encode")
	}

	out := make([]byte, 0, 4+1+16+2+len(frame.Topic)+8+8+12+4+len(ct)+16)
	out = append(out, frameMagic[:]...)
	out = append(out, frameVersion)
	out = append(out, frame.TunnelId[:]...)
	out = appendUint16(out, uint16(len(frame.Topic)))
	out = append(out, frame.Topic...)
	out = appendUint64(out, frame.Epoch)
	out = appendUint64(out, frame.Seq)
	out = append(out, frame.Nonce[:]...)
	out = appendUint32(out, uint32(len(ct)))
	out = append(out, ct...)
	out = append(out, tag...)
	return out, nil
}

// UnmarshalFrame decodes a frame envelope produced by MarshalFrame.
func UnmarshalFrame(data []byte) (Frame, error) {
	r := frameReader{buf: data}

	magic, err := r.fixed(4)
	if nil != err {
		return Frame{}, err
	}
	if string(magic) != string(frameMagic[:]) {
		return Frame{}, newError(ErrInvalidInput, "bad frame magic")
	}
	version, err := r.byte()
	if nil != err {
		return Frame{}, err
	}
	if version != frameVersion {
		return Frame{}, newError(ErrInvalidInput, "unsupported frame version %d", version)
	}

	tunnelIdBytes, err := r.fixed(16)
	if nil != err {
		return Frame{}, err
	}
	topicLen, err := r.uint16()
	if nil != err {
		return Frame{}, err
	}
	topicBytes, err := r.fixed(int(topicLen))
	if nil != err {
		return Frame{}, err
	}
	epoch, err := r.uint64()
	if nil != err {
		return Frame{}, err
	}
	seq, err := r.uint64()
	if nil != err {
		return Frame{}, err
	}
	nonceBytes, err := r.fixed(12)
	if nil != err {
		return Frame{}, err
	}
	ctLen, err := r.uint32()
	if nil != err {
		return Frame{}, err
	}
	ct, err := r.fixed(int(ctLen))
	if nil != err {
		return Frame{}, err
	}
	tag, err := r.fixed(16)
	if nil != err {
		return Frame{}, err
	}

	var tunnelId [16]byte
	copy(tunnelId[:], tunnelIdBytes)
	var nonce [12]byte
	copy(nonce[:], nonceBytes)

	sealed := make([]byte, 0, len(ct)+16)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	return Frame{
		TunnelId: tunnelId,
		Topic:    string(topicBytes),
		Epoch:    epoch,
		Seq:      seq,
		Nonce:    nonce,
		Sealed:   sealed,
	}, nil
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// frameReader is a minimal little-endian cursor over an in-memory wire envelope.
type frameReader struct {
	buf []byte
	pos int
}

func (self *frameReader) fixed(n int) ([]byte, error) {
	if n < 0 || self.pos+n > len(self.buf) {
		return nil, newError(ErrInvalidInput, "truncated frame envelope")
	}
	out := self.buf[self.pos : self.pos+n]
	self.pos += n
	return out, nil
}

func (self *frameReader) byte() (byte, error) {
	b, err := self.fixed(1)
	if nil != err {
		return 0, err
	}
	return b[0], nil
}

func (self *frameReader) uint16() (uint16, error) {
	b, err := self.fixed(2)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (self *frameReader) uint32() (uint32, error) {
	b, err := self.fixed(4)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (self *frameReader) uint64() (uint64, error) {
	b, err := self.fixed(8)
	if nil != err {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}
