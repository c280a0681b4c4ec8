package objproxy

// Char is a 16-bit code unit, mirroring the source runtime's UTF-16 char
// primitive closely enough to round-trip through the wire's Char tag
// without pulling in a full UTF-16 string type.
type Char uint16

// TypeRef is an assembly-qualified type name serialized with the wire's Type
// tag.
type TypeRef string

// Decimal is a high-precision decimal literal serialized with the wire's
// Decimal tag. There is no fixed bit layout for Decimal (unlike the
// fixed-width integer/float tags), so this package represents it as its
// canonical decimal text (e.g. "12.50") rather than inventing a 128-bit
// layout nothing else in the protocol depends on.
type Decimal string

// AsProxy explicitly requests that Instance be serialized as a Proxy
// reference rather than by value -- automatic promotion from type flags
// alone is ambiguous for a serializable interface-typed value, so this gives
// callers an unambiguous way to opt in. Passing AsProxy{Instance: obj} as a
// call argument always promotes obj to a Local proxy (registering one if
// none exists yet) and serializes a Proxy reference to it.
type AsProxy struct {
	Instance     interface{}
	OwnsInstance bool
}

// MethodDescriptor identifies the target of a MethodCall without relying on
// host-language reflection over a captured expression. Callers (or a
// generated transparent-proxy stub) construct one explicitly.
//
// WaitTask marks a call whose declared return is an async completion (the
// source runtime's "awaitable" method shape) that the caller wants the
// receiver to await before replying, rather than returning the completion
// object itself as the ReturnValue. This package's method dispatch is
// synchronous reflection, so a Go receiver has nothing to await -- WaitTask
// still travels on the wire to preserve the caller's intent for a peer
// implementation that does have async methods to wait on.
type MethodDescriptor struct {
	IsGeneric        bool
	WaitTask         bool
	DeclaringType    string
	MethodName       string
	ParamTypeNames   []string
	GenericTypeNames []string
}
