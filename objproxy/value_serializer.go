package objproxy

import (
	"context"
	"fmt"
	"math"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// wireTag is the one-byte discriminator prefixing every serialized value.
type wireTag byte

const (
	tagNull wireTag = iota
	tagFalse
	tagTrue
	tagByte
	tagSByte
	tagInt16
	tagUInt16
	tagChar
	tagInt32
	tagUInt32
	tagInt64
	tagUInt64
	tagSingle
	tagDouble
	tagDecimal
	tagString
	tagType
	tagByteArray
	tagCancellationToken
	tagProxy
	tagOther
)

var cborMode = func() cbor.EncMode {
	m, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

// encodeValue writes value's wire tag and payload to w. paramTypeName is the
// declaring method's static parameter type name for this argument slot (or
// the declared return type name for a return value); it drives automatic
// proxy promotion for values that aren't already a *Proxy or AsProxy --
// automatic promotion is driven by an explicit registration rather than
// inferred type flags; see Host.RegisterInterfaceType.
// tokens collects any cancellable contexts referenced by value so the caller
// can start the CancellationRequest watchers once the whole call is on the
// wire.
func (h *Host) encodeValue(w *wireWriter, value interface{}, paramTypeName string, tokens *tokenCollector) error {
	switch v := value.(type) {
	case nil:
		w.writeByte(byte(tagNull))
		return nil
	case bool:
		if v {
			w.writeByte(byte(tagTrue))
		} else {
			w.writeByte(byte(tagFalse))
		}
		return nil
	case uint8:
		w.writeByte(byte(tagByte))
		w.writeByte(v)
		return nil
	case int8:
		w.writeByte(byte(tagSByte))
		w.writeByte(byte(v))
		return nil
	case int16:
		w.writeByte(byte(tagInt16))
		w.writeInt16(v)
		return nil
	case uint16:
		w.writeByte(byte(tagUInt16))
		w.writeUint16(v)
		return nil
	case Char:
		w.writeByte(byte(tagChar))
		w.writeUint16(uint16(v))
		return nil
	case int32:
		w.writeByte(byte(tagInt32))
		w.writeInt32(v)
		return nil
	case uint32:
		w.writeByte(byte(tagUInt32))
		w.writeUint32(v)
		return nil
	case int64:
		w.writeByte(byte(tagInt64))
		w.writeInt64(v)
		return nil
	case uint64:
		w.writeByte(byte(tagUInt64))
		w.writeUint64(v)
		return nil
	case int:
		w.writeByte(byte(tagInt64))
		w.writeInt64(int64(v))
		return nil
	case float32:
		w.writeByte(byte(tagSingle))
		w.writeUint32(math.Float32bits(v))
		return nil
	case float64:
		w.writeByte(byte(tagDouble))
		w.writeUint64(math.Float64bits(v))
		return nil
	case Decimal:
		w.writeByte(byte(tagDecimal))
		w.writeString(string(v))
		return nil
	case string:
		w.writeByte(byte(tagString))
		w.writeString(v)
		return nil
	case TypeRef:
		w.writeByte(byte(tagType))
		w.writeString(string(v))
		return nil
	case []byte:
		w.writeByte(byte(tagByteArray))
		w.writeRawBytes(v)
		return nil
	case context.Context:
		w.writeByte(byte(tagCancellationToken))
		w.writeInt32(tokens.register(v))
		return nil
	case *Proxy:
		w.writeByte(byte(tagProxy))
		return h.encodeProxyRef(w, v)
	case AsProxy:
		w.writeByte(byte(tagProxy))
		p, err := h.promote(v.Instance, v.OwnsInstance)
		if err != nil {
			return err
		}
		return h.encodeProxyRef(w, p)
	default:
		if h.isRegisteredInterface(paramTypeName) {
			p, err := h.promote(value, false)
			if err != nil {
				return err
			}
			w.writeByte(byte(tagProxy))
			return h.encodeProxyRef(w, p)
		}
		w.writeByte(byte(tagOther))
		return h.encodeOther(w, value)
	}
}

// promote returns the Local proxy for instance, reusing an existing one for
// that instance if this host has already registered it, or allocating a
// fresh one otherwise.
func (h *Host) promote(instance interface{}, ownsInstance bool) (*Proxy, error) {
	if p, ok := h.registry.lookupLocalByInstance(instance); ok {
		return p, nil
	}
	tn := typeNameOf(instance)
	return h.registry.registerLocal(h, tn, tn, instance, ownsInstance), nil
}

// encodeProxyRef writes a Proxy tag's payload: the ownership byte from the
// writer's point of view, then remote_type, object_type and the id.
// Ownership is written as p.Ownership() reports it: a proxy this host owns
// Locally is written as Local so the peer resolves it into its own Remote
// table; a proxy this host holds Remotely (forwarding a handle it was
// itself given) is written as Remote, telling the peer the object already
// lives there under that id.
func (h *Host) encodeProxyRef(w *wireWriter, p *Proxy) error {
	if p.Ownership() == OwnershipLocal {
		w.writeByte(0)
	} else {
		w.writeByte(1)
	}
	w.writeString(p.RemoteType())
	w.writeString(p.ObjectType())
	w.writeInt32(p.ID())
	return nil
}

// encodeOther serializes a value with no dedicated tag (structs, maps,
// slices of the above) via CBOR, length-prefixed like the other variable
// length tags. Nested *Proxy values are written through Proxy.MarshalCBOR
// as a CBOR record of ownership, type names and id wherever the encoder's
// struct/slice/map walk meets them; decodeOther returns such a record as a
// generic map, not a *Proxy. Nested context.Context values are not supported -- none of
// this protocol's call shapes need a cancellation token buried inside an
// Other-tagged structure, and a simpler self-describing codec is chosen
// deliberately over a general graph walker here.
func (h *Host) encodeOther(w *wireWriter, value interface{}) error {
	b, err := cborMode.Marshal(value)
	if err != nil {
		return wrapf(ErrSerialization, "encode other: %v", err)
	}
	w.writeRawBytes(b)
	return nil
}

// decodeValue reads one tagged value from r. scope resolves
// CancellationToken tags against the inbound call's token scope; it is nil
// when decoding a return value or an Activation/Deactivation payload, where
// a CancellationToken reference (if any were ever to appear there) cannot
// be delivered a cancel and is treated as non-cancellable.
func (h *Host) decodeValue(r *wireReader, scope *inboundScope) (interface{}, error) {
	b, err := r.readByte()
	if err != nil {
		return nil, err
	}
	switch wireTag(b) {
	case tagNull:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagByte:
		return r.readByte()
	case tagSByte:
		b, err := r.readByte()
		return int8(b), err
	case tagInt16:
		return r.readInt16()
	case tagUInt16:
		return r.readUint16()
	case tagChar:
		v, err := r.readUint16()
		return Char(v), err
	case tagInt32:
		return r.readInt32()
	case tagUInt32:
		return r.readUint32()
	case tagInt64:
		return r.readInt64()
	case tagUInt64:
		return r.readUint64()
	case tagSingle:
		v, err := r.readUint32()
		return math.Float32frombits(v), err
	case tagDouble:
		v, err := r.readUint64()
		return math.Float64frombits(v), err
	case tagDecimal:
		s, err := r.readString()
		return Decimal(s), err
	case tagString:
		return r.readString()
	case tagType:
		s, err := r.readString()
		return TypeRef(s), err
	case tagByteArray:
		raw, err := r.readRawBytes()
		if err != nil {
			return nil, err
		}
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return cp, nil
	case tagCancellationToken:
		tokenID, err := r.readInt32()
		if err != nil {
			return nil, err
		}
		if scope == nil {
			return context.Background(), nil
		}
		return scope.contextFor(tokenID), nil
	case tagProxy:
		return h.decodeProxyRef(r)
	case tagOther:
		return h.decodeOther(r)
	default:
		return nil, wrapf(ErrSerialization, "unknown wire tag %d", b)
	}
}

func (h *Host) decodeProxyRef(r *wireReader) (*Proxy, error) {
	ownershipByte, err := r.readByte()
	if err != nil {
		return nil, err
	}
	remoteType, err := r.readString()
	if err != nil {
		return nil, err
	}
	objectType, err := r.readString()
	if err != nil {
		return nil, err
	}
	id, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	if ownershipByte == 1 {
		// Sender wrote Remote: the object already lives here, under id,
		// in our Local table.
		p, ok := h.registry.lookupLocal(id)
		if !ok {
			return nil, wrapf(ErrProxyNotFound, "local proxy %d referenced by peer not found", id)
		}
		return p, nil
	}
	// Sender wrote Local: it owns the object, we hold (or create) a Remote
	// proxy mirroring it.
	if p, ok := h.registry.lookupRemote(id); ok {
		return p, nil
	}
	p := newRemoteProxy(h, id, remoteType, objectType, false)
	h.registry.registerRemote(p)
	return p, nil
}

func (h *Host) decodeOther(r *wireReader) (interface{}, error) {
	raw, err := r.readRawBytes()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := cbor.Unmarshal(raw, &v); err != nil {
		return nil, wrapf(ErrSerialization, "decode other: %v", err)
	}
	return v, nil
}

// MarshalCBOR lets *Proxy values appear as struct/slice/map fields inside an
// Other-tagged value and still carry their identity fields through, instead
// of being flattened to an opaque blob. There is no matching UnmarshalCBOR:
// decoding an Other value that nests one of these comes back as a generic
// map, not a *Proxy. One-way encoding is enough for the cases this package
// needs Other for; a nested Proxy meant to be called back into should be
// passed as its own top-level argument or field with the Proxy wire tag.
func (p *Proxy) MarshalCBOR() ([]byte, error) {
	ownership := byte(1)
	if p.Ownership() == OwnershipLocal {
		ownership = 0
	}
	return cborMode.Marshal(struct {
		Ownership  byte
		RemoteType string
		ObjectType string
		ID         int32
	}{ownership, p.RemoteType(), p.ObjectType(), p.ID()})
}

func typeNameOf(v interface{}) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return fmt.Sprintf("%s.%s", t.PkgPath(), t.Name())
}
