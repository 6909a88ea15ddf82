package spdymux

// headerDictionary is the fixed zlib preset dictionary shared by every
// SPDY/3.1 peer when compressing and decompressing header name/value
// blocks (SPDY/3.1 section 2.6.10, "Name/Value Header Block"). Priming
// the stream with these common header tokens lets the very first
// header block on a connection compress well, since zlib has nothing
// else to reference yet.
//
// Both sides of a session must seed their zlib.Writer/zlib.Reader with
// the exact same bytes or decompression fails outright, so this is
// copied verbatim from the wire format rather than re-derived.
const headerDictionary = "" +
	"optionsgetheadpostputdeletetraceacceptaccept-charsetaccept-encodingaccept-" +
	"languageaccept-rangesageallowauthorizationcache-controlconnectioncontent-" +
	"basecontent-encodingcontent-languagecontent-lengthcontent-locationcontent-" +
	"md5content-rangecontent-typedateetagexpectexpiresfromhostif-matchif-" +
	"modified-sinceif-none-matchif-rangeif-unmodifiedsincelast-modifiedlocation" +
	"max-forwardspragmaproxy-authenticateproxy-authorizationrangerefererretry-" +
	"afterserverset-cookiestatustransfer-encodingupgradeuser-agentvaryviawarnin" +
	"gwww-authenticatemethodgetstatus200okversionhttp/1.1urlpublicsetcookiekeep" +
	"-alivetransfer-encodingTE Trailerscloseidentitytrailervary" +
	"acceptaccept-charsetaccess-controlaccess-control-allow-originaccess-contro" +
	"l-allow-credentialsaccess-control-expose-headersaccess-control-max-agea" +
	"ccess-control-request-methodaccess-control-request-headersalternate-proto" +
	"colauthorizationcache-controlcookiedatecontent-dispositioncontent-languag" +
	"econtent-locationxcontent-securitypolicyreport-onlysecwebsocketkeysecweb" +
	"socketprotocolsecwebsocketacceptsecwebsocketversionsecwebsocketextensions" +
	"0.0001.002001999999999999.9=text/csstext/plainimage/pngimage/jpgimage/" +
	"gifapplication/xmlapplication/xhtml+xmltext/htmlapplication/octetstream" +
	"iso-8859-1utf-8utf-16iso-8859-15gb2312charset=gzipdeflatesdchcompress" +
	"identityen-usen-gb302200400404500identity"
