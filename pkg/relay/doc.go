// Package relay delivers responses as ordered, cancellable chunk streams.
//
// A Stream yields chunks through Recv and reports the end with io.EOF.
// Sources adapt a finished string into word chunks (FromString) or wrap a
// genuinely incremental producer (Pipe). Pump moves a stream into a Sink and
// then signals Done.
//
//	stream := relay.FromString(ctx, "A B C ", relay.DefaultDelay)
//	text, err := relay.Collect(ctx, stream) // "A B C "
package relay
