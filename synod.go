/*
	synod -- A simulation of single-value consensus with the Synod algorithm.

	A fixed group of N processes agrees on one binary value. Each process
	proposes under ballots it alone owns (ballot ≡ index mod N), reads the
	accepted state of a majority, imposes the most recently accepted estimate
	and, once a majority acknowledged the imposition, floods a Decide.

	Processes may be told to Crash, after which every inbound message has
	probability alpha of silencing them for good, or to Hold, after which they
	stop starting new rounds but keep answering others. Holding all but one
	survivor is how a run makes sure some proposer ends up running alone.

	The protocol core lives in this package. The in-memory network and the
	simulation driver are here too. The `clusternet` package carries processes
	between hosts over ZeroMQ, and `store` keeps experiment results in SQLite.
*/

package synod
