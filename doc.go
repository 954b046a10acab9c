/*
Package pushserver implements an in-memory publish/subscribe push engine with
per-client session queues, and a reference Server-Sent Events transport on top
of it.

Publishers send messages to named topics; each topic fans a message out to the
sessions subscribed to it. A session is a mailbox for one logical client. It
outlives any single network connection, so a client that reconnects with the
same session id receives everything published while it was away, in order.


Sessions and delivery

Every published message is first appended to the session queue and only then
pushed to the client's transport, if one is attached. A push that fails or is
cut short puts the undelivered messages back at the head of the queue and the
session reverts to DETACHED until the client reconnects. Delivery is therefore
at-least-once per session, and ordered per session.

Queues are bounded. When a queue is full the oldest message is dropped.

A session that is empty, has no attached transport, and has been idle longer
than the grace period is reclaimed by a background sweep and removed from
every topic.


Topics

Topics are addressed as "name" or "subtopic@name":

    pets         // the pets topic
    cats@pets    // the cats subtopic of pets

Subtopics are independent topics; publishing to "pets" does not reach
subscribers of "cats@pets". Topics must be created with
TopicsContext.GetOrCreateTopic before anything can be published or subscribed
to them.


Server-Sent Events

Server exposes a PushContext over HTTP:

    HTTP GET  /subscribe/cats@pets?pushSessionId=abc   // stream for session abc
    HTTP POST /publish/cats@pets?event=new-cat         // publish request body

For more information on the SSE format itself, check out this fairly
comprehensive article:
http://www.html5rocks.com/en/tutorials/eventsource/basics/

Note that the implementation of SSE in this server intentionally does not
implement message IDs; replay is handled by the session queue instead.
*/
package pushserver
