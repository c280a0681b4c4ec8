package objproxy

// messageType is the first byte of every frame payload.
type messageType byte

const (
	msgMethodCall messageType = iota
	msgReturnValue
	msgReturnException
	msgActivation
	msgDeactivation
	msgCancellationRequest
)

// methodCallMsg is the decoded body of a MethodCall frame.
type methodCallMsg struct {
	seq       int32
	targetID  int32
	desc      MethodDescriptor
	args      []interface{}
}

func (h *Host) encodeMethodCall(seq, targetID int32, desc MethodDescriptor, args []interface{}, tokens *tokenCollector) ([]byte, error) {
	w := newWireWriter()
	w.writeByte(byte(msgMethodCall))
	w.writeInt32(seq)
	w.writeInt32(targetID)
	w.writeBool(desc.WaitTask)
	w.writeBool(desc.IsGeneric)
	w.writeString(desc.DeclaringType)
	w.writeString(desc.MethodName)
	w.writeInt32(int32(len(desc.ParamTypeNames)))
	for _, t := range desc.ParamTypeNames {
		w.writeString(t)
	}
	w.writeInt32(int32(len(desc.GenericTypeNames)))
	for _, t := range desc.GenericTypeNames {
		w.writeString(t)
	}
	w.writeInt32(int32(len(args)))
	for i, a := range args {
		paramType := ""
		if i < len(desc.ParamTypeNames) {
			paramType = desc.ParamTypeNames[i]
		}
		if err := h.encodeValue(w, a, paramType, tokens); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

// decodeMethodCall decodes a MethodCall body. scopeFn is called with the
// call's seq as soon as it is read, and must return the inbound cancellation
// scope to resolve any CancellationToken markers found among the arguments
// against -- letting the caller register that scope under its real seq
// before a racing CancellationRequest for the same call could otherwise find
// nothing registered yet.
func (h *Host) decodeMethodCall(r *wireReader, scopeFn func(seq int32) *inboundScope) (*methodCallMsg, error) {
	m := &methodCallMsg{}
	var err error
	if m.seq, err = r.readInt32(); err != nil {
		return nil, err
	}
	scope := scopeFn(m.seq)
	if m.targetID, err = r.readInt32(); err != nil {
		return nil, err
	}
	if m.desc.WaitTask, err = r.readBool(); err != nil {
		return nil, err
	}
	if m.desc.IsGeneric, err = r.readBool(); err != nil {
		return nil, err
	}
	if m.desc.DeclaringType, err = r.readString(); err != nil {
		return nil, err
	}
	if m.desc.MethodName, err = r.readString(); err != nil {
		return nil, err
	}
	nParams, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	m.desc.ParamTypeNames = make([]string, nParams)
	for i := range m.desc.ParamTypeNames {
		if m.desc.ParamTypeNames[i], err = r.readString(); err != nil {
			return nil, err
		}
	}
	nGeneric, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	m.desc.GenericTypeNames = make([]string, nGeneric)
	for i := range m.desc.GenericTypeNames {
		if m.desc.GenericTypeNames[i], err = r.readString(); err != nil {
			return nil, err
		}
	}
	nArgs, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	m.args = make([]interface{}, nArgs)
	for i := range m.args {
		if m.args[i], err = h.decodeValue(r, scope); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (h *Host) encodeReturnValue(seq int32, value interface{}, returnTypeName string, tokens *tokenCollector) ([]byte, error) {
	w := newWireWriter()
	w.writeByte(byte(msgReturnValue))
	w.writeInt32(seq)
	if err := h.encodeValue(w, value, returnTypeName, tokens); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func (h *Host) decodeReturnValue(r *wireReader) (seq int32, value interface{}, err error) {
	if seq, err = r.readInt32(); err != nil {
		return 0, nil, err
	}
	value, err = h.decodeValue(r, nil)
	return seq, value, err
}

func encodeReturnException(seq int32, typeName, message string) []byte {
	w := newWireWriter()
	w.writeByte(byte(msgReturnException))
	w.writeInt32(seq)
	w.writeString(typeName)
	w.writeString(message)
	return w.Bytes()
}

func decodeReturnException(r *wireReader) (seq int32, remoteErr *remoteError, err error) {
	if seq, err = r.readInt32(); err != nil {
		return 0, nil, err
	}
	typeName, err := r.readString()
	if err != nil {
		return 0, nil, err
	}
	message, err := r.readString()
	if err != nil {
		return 0, nil, err
	}
	return seq, newRemoteError(typeName, message), nil
}

// activationMsg is the decoded body of an Activation frame:
// either a construction request (ctorArgs non-nil, loadKey empty) or a load
// request (loadKey non-empty), targeting preallocatedID.
type activationMsg struct {
	seq            int32
	preallocatedID int32
	typeName       string
	isLoad         bool
	loadKey        string
	ctorArgs       []interface{}
}

func (h *Host) encodeActivation(seq int32, m activationMsg, tokens *tokenCollector) ([]byte, error) {
	w := newWireWriter()
	w.writeByte(byte(msgActivation))
	w.writeInt32(seq)
	w.writeInt32(m.preallocatedID)
	w.writeString(m.typeName)
	w.writeBool(m.isLoad)
	if m.isLoad {
		w.writeString(m.loadKey)
		return w.Bytes(), nil
	}
	w.writeInt32(int32(len(m.ctorArgs)))
	for _, a := range m.ctorArgs {
		if err := h.encodeValue(w, a, "", tokens); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func (h *Host) decodeActivation(r *wireReader) (*activationMsg, error) {
	m := &activationMsg{}
	var err error
	if m.seq, err = r.readInt32(); err != nil {
		return nil, err
	}
	if m.preallocatedID, err = r.readInt32(); err != nil {
		return nil, err
	}
	if m.typeName, err = r.readString(); err != nil {
		return nil, err
	}
	if m.isLoad, err = r.readBool(); err != nil {
		return nil, err
	}
	if m.isLoad {
		if m.loadKey, err = r.readString(); err != nil {
			return nil, err
		}
		return m, nil
	}
	n, err := r.readInt32()
	if err != nil {
		return nil, err
	}
	m.ctorArgs = make([]interface{}, n)
	for i := range m.ctorArgs {
		if m.ctorArgs[i], err = h.decodeValue(r, nil); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func encodeDeactivation(id int32) []byte {
	w := newWireWriter()
	w.writeByte(byte(msgDeactivation))
	w.writeInt32(id)
	return w.Bytes()
}

func decodeDeactivation(r *wireReader) (id int32, err error) {
	return r.readInt32()
}

func encodeCancellationRequest(corr, tokenID int32) []byte {
	w := newWireWriter()
	w.writeByte(byte(msgCancellationRequest))
	w.writeInt32(corr)
	w.writeInt32(tokenID)
	return w.Bytes()
}

func decodeCancellationRequest(r *wireReader) (corr, tokenID int32, err error) {
	if corr, err = r.readInt32(); err != nil {
		return 0, 0, err
	}
	tokenID, err = r.readInt32()
	return corr, tokenID, err
}
