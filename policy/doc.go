// Package policy implements admission control for the relay queue.
//
// An Enforcer holds one loaded Document and answers, for each message, whether
// it may be queued. Rules are evaluated in order and the first failing rule
// denies:
//
//  1. urgent messages require a privileged sender when the document says so;
//     privileged senders always pass this rule
//  2. a message kind explicitly disabled in the document is denied
//  3. everything else is allowed
//
// The document is read-only during enforcement. Reload is explicit: callers
// load a new Document (for example through a FileSource) and hand it to
// Enforcer.Reload, which validates and swaps it atomically.
//
// Example document (YAML or JSON):
//
//	version: "1"
//	roles:
//	  captain:
//	    privileged: true
//	    members: ["Agent-4"]
//	  system:
//	    system: true
//	    members: ["system"]
//	channels:
//	  broadcast:
//	    enabled: true
//	  human_to_agent:
//	    enabled: false
//	priority:
//	  urgent:
//	    requires_privileged: true
package policy
