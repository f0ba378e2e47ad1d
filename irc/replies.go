package irc

// IRC numeric reply codes. 501 and 502 deviate from RFC 1459: here 501 is
// users-don't-match and 502 is unknown-mode-flag.
const (
	RPL_WELCOME       = 1
	RPL_YOURHOST      = 2
	RPL_CREATED       = 3
	RPL_MYINFO        = 4
	RPL_UMODEIS       = 221
	RPL_ENDOFWHO      = 315
	RPL_LISTSTART     = 321
	RPL_LIST          = 322
	RPL_LISTEND       = 323
	RPL_CHANNELMODEIS = 324
	RPL_NOTOPIC       = 331
	RPL_TOPIC         = 332
	RPL_INVITING      = 341
	RPL_VERSION       = 351
	RPL_WHOREPLY      = 352
	RPL_NAMREPLY      = 353
	RPL_ENDOFNAMES    = 366
	RPL_MOTDSTART     = 375
	RPL_MOTD          = 372
	RPL_ENDOFMOTD     = 376
	RPL_YOUREOPER     = 381

	ERR_NOSUCHNICK        = 401
	ERR_NOSUCHCHANNEL     = 403
	ERR_CANNOTSENDTOCHAN  = 404
	ERR_INVALIDCAPCMD     = 410
	ERR_NORECIPIENT       = 411
	ERR_NOTEXTTOSEND      = 412
	ERR_UNKNOWNCOMMAND    = 421
	ERR_NOMOTD            = 422
	ERR_NONICKNAMEGIVEN   = 431
	ERR_ERRONEOUSNICK     = 432
	ERR_NICKNAMEINUSE     = 433
	ERR_USERNOTINCHANNEL  = 441
	ERR_NOTONCHANNEL      = 442
	ERR_USERONCHANNEL     = 443
	ERR_NOTREGISTERED     = 451
	ERR_NEEDMOREPARAMS    = 461
	ERR_ALREADYREGISTERED = 462
	ERR_PASSWDMISMATCH    = 464
	ERR_CHANNELISFULL     = 471
	ERR_UNKNOWNMODE       = 472
	ERR_INVITEONLYCHAN    = 473
	ERR_BADCHANNELKEY     = 475
	ERR_NOPRIVILEGES      = 481
	ERR_CHANOPRIVSNEEDED  = 482
	ERR_USERSDONTMATCH    = 501
	ERR_UMODEUNKNOWNFLAG  = 502
)
