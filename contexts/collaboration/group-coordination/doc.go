// Package groupcoordination implements group membership and in-group polls.
//
// Groups carry member and admin roles and always keep at least one admin while
// they have members. Polls belong to a group, accept one vote per member and
// project results that hide voter identity when the poll is anonymous. Every
// precondition check and the write it guards share one storage transaction.
package groupcoordination
