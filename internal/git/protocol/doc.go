// Package protocol implements the smart HTTP upload-pack subset vaults use
// to synchronize: pkt-line framing, side-band multiplexing, ref
// advertisement and single-want pack negotiation.
//
// # Framing
//
// A pkt-line is four hex digits giving the frame length, prefix included,
// followed by the payload. "0000" is a flush-pkt and carries nothing. The
// largest payload is MaxPayload bytes.
//
// # Side-band
//
// Pack responses are multiplexed: each frame's first payload byte names a
// band. Band 1 carries pack data, band 2 progress text for the user and
// band 3 a fatal error message. Mux interleaves a pack stream and a
// progress stream as they produce data; Demuxer undoes it.
//
// # Negotiation
//
// A client sends one "want" line, optionally followed by "have" lines, and
// "done". The server always answers NAK and streams the pack. Multi-ack is
// not supported.
//
// # Transport
//
// Requests and responses are exchanged through the Transport interface.
// Response bodies are pull sequences: the consumer asks for the next chunk
// and nothing is read ahead of it. HTTPTransport talks to a remote node;
// HandlerTransport calls a Server in process, which is what tests and
// loopback syncs use.
package protocol
