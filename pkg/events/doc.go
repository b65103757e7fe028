/*
Package events provides an in-process publish/subscribe broker.

The reconciler publishes one event per reconciliation run and the executor's
escalator publishes one per kill outcome. Subscribers (the CLI, tests) read
from buffered channels:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	for ev := range sub {
		fmt.Println(ev.Type, ev.TaskID, ev.Message)
	}

Delivery is best effort. Publish never blocks the publisher, so events are
dropped when the broker queue (100) or a subscriber buffer (50) is full. A nil
*Broker accepts Publish calls and discards them, which lets components treat
the broker as optional.
*/
package events
