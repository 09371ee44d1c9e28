// Command vibedispatch drives the maintenance and open-source contribution
// pipelines from the terminal.
//
// Read commands (stages, items, oss targets) load the relevant stages and
// print tables. Action commands (install, run, assign, approve, merge, and
// their oss counterparts) select items by argument or with --all, run the
// batch coordinator, and print the progress log. Action commands hold an
// exclusive lock under the data directory so two invocations never mutate
// the same repositories concurrently. The review command opens an
// interactive queue of items waiting for a human.
package main
