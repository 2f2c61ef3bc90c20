// Package proposals lets members suggest anime for a list and moderate the
// suggestions.
//
// Status changes are decided by the moderation state machine and applied by
// the authorization gateway, through the update_proposal_status procedure
// when it is installed. Accepting or rejecting someone else's proposal
// notifies its author.
package proposals
