/*
Package config loads the pipeline document: which input feeds the tree and
which stages hang below it.

	input:
	  bin: tail
	  args: ["-F", "/var/log/app.log"]
	outputs:
	  - bin: grep
	    args: ["ERROR"]
	    pipe:
	      bin: tee
	      args: ["/tmp/errors.log"]
	  - bin: gzip
	    keep_alive: false

The input is either the sentinel "stdin" (the default) or a command. Stages
are listed under "outputs" or "pipes" and may nest with "pipe" or "pipes".
*/
package config
